// Package dbstore is the relational entity store over SQLite. It keeps
// records in a main relation plus a normalized tag side relation, which
// is what NF filter conditions compile against.
package dbstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/filter/sqlgen"
)

const (
	recordsTable = "records"
	tagsTable    = "record_tags"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	type      TEXT NOT NULL DEFAULT '',
	content   TEXT NOT NULL DEFAULT '',
	priority  INTEGER NOT NULL DEFAULT 0,
	metadata  TEXT NOT NULL DEFAULT '{}',
	timestamp TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS record_tags (
	record_id INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	slot      TEXT NOT NULL,
	value     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_record_tags_record ON record_tags(record_id);
CREATE INDEX IF NOT EXISTS idx_record_tags_slot_value ON record_tags(slot, value);
`

// Store is a recdex.Store over modernc.org/sqlite.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

var _ recdex.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens or creates the database at path. Use ":memory:" for an
// in-process store.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open store: path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap("open store", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, wrap("init schema", err)
	}
	s := &Store{db: db, path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("store opened", zap.String("path", path))
	return s, nil
}

// Kind implements recdex.Store.
func (s *Store) Kind() string { return "sqlite" }

// DB exposes the underlying handle for engines that index in place.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect of the backing database.
func (s *Store) Dialect() sqlgen.Dialect { return sqlgen.SQLite }

// Schema returns the filter compilation schema of the main relation.
func (s *Store) Schema() sqlgen.Schema {
	return sqlgen.Schema{
		Table:    recordsTable,
		IDColumn: "id",
		Columns: map[string]string{
			"id":        "id",
			"name":      "name",
			"type":      "type",
			"content":   "content",
			"priority":  "priority",
			"metadata":  "metadata",
			"timestamp": "timestamp",
		},
		NF: sqlgen.NFRelation{Table: tagsTable, RefColumn: "record_id"},
	}
}

// Has implements recdex.Store.
func (s *Store) Has(ctx context.Context, key any) (bool, error) {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM records WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("has", err)
	}
	return true, nil
}

// Get implements recdex.Store. Absent records return (nil, nil).
func (s *Store) Get(ctx context.Context, key any) (*recdex.Record, error) {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, type, content, priority, metadata, timestamp FROM records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", err)
	}
	rec.Tags, err = s.tagsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Upsert implements recdex.Store.
func (s *Store) Upsert(ctx context.Context, rec *recdex.Record) error {
	return s.write(ctx, []*recdex.Record{rec}, true)
}

// Insert implements recdex.Store: a no-op when the id already exists.
func (s *Store) Insert(ctx context.Context, rec *recdex.Record) error {
	return s.write(ctx, []*recdex.Record{rec}, false)
}

// BatchUpsert implements recdex.Store.
func (s *Store) BatchUpsert(ctx context.Context, recs []*recdex.Record) error {
	return s.write(ctx, recs, true)
}

// BatchInsert implements recdex.Store.
func (s *Store) BatchInsert(ctx context.Context, recs []*recdex.Record) error {
	return s.write(ctx, recs, false)
}

func (s *Store) write(ctx context.Context, recs []*recdex.Record, replace bool) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("write", err)
	}
	defer tx.Rollback()

	verb := "INSERT OR IGNORE"
	if replace {
		verb = "INSERT OR REPLACE"
	}
	stmt, err := tx.PrepareContext(ctx, verb+
		" INTO records (id, name, type, content, priority, metadata, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return wrap("write", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		meta, err := encodeMetadata(rec.Metadata)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx, rec.ID, rec.Name, rec.Type, rec.Content,
			rec.Priority, meta, encodeTime(rec.Timestamp))
		if err != nil {
			return wrap("write", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrap("write", err)
		}
		if n == 0 {
			continue // insert skipped an existing record, leave its tags alone
		}
		if err := replaceTags(ctx, tx, rec); err != nil {
			return err
		}
	}
	return wrap("write", tx.Commit())
}

func replaceTags(ctx context.Context, tx *sql.Tx, rec *recdex.Record) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM record_tags WHERE record_id = ?", rec.ID); err != nil {
		return wrap("write tags", err)
	}
	for _, tag := range rec.Tags {
		slot, value, ok := recdex.SplitTag(tag)
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO record_tags (record_id, slot, value) VALUES (?, ?, ?)",
			rec.ID, slot, value); err != nil {
			return wrap("write tags", err)
		}
	}
	return nil
}

// Remove implements recdex.Store. Missing records are a no-op.
func (s *Store) Remove(ctx context.Context, key any) error {
	return s.BatchRemove(ctx, []any{key})
}

// BatchRemove implements recdex.Store.
func (s *Store) BatchRemove(ctx context.Context, keys []any) error {
	ids, err := recdex.Keys(keys)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("remove", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM record_tags WHERE record_id IN ("+marks+")", args...); err != nil {
		return wrap("remove", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id IN ("+marks+")", args...); err != nil {
		return wrap("remove", err)
	}
	return wrap("remove", tx.Commit())
}

// Clear implements recdex.Store.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM record_tags"); err != nil {
		return wrap("clear", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return wrap("clear", err)
	}
	return nil
}

// Len implements recdex.Store.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, wrap("len", err)
	}
	return n, nil
}

// All implements recdex.Store.
func (s *Store) All(ctx context.Context) ([]*recdex.Record, error) {
	return s.Select(ctx, sqlgen.Predicate{SQL: sqlgen.MatchAll}, 0, 0)
}

// Select returns records matching a compiled predicate, ordered by id.
// limit 0 means unlimited.
func (s *Store) Select(ctx context.Context, pred sqlgen.Predicate, limit, offset int) ([]*recdex.Record, error) {
	query := "SELECT id, name, type, content, priority, metadata, timestamp FROM records WHERE " +
		pred.SQL + " ORDER BY id"
	args := append([]any(nil), pred.Args...)
	if limit > 0 || offset > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limitOrAll(limit), offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("select", err)
	}
	defer rows.Close()

	var recs []*recdex.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrap("select", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("select", err)
	}
	if err := s.attachTags(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// SelectIDs returns matching ids only, ordered ascending.
func (s *Store) SelectIDs(ctx context.Context, pred sqlgen.Predicate, limit, offset int) ([]int64, error) {
	query := "SELECT id FROM records WHERE " + pred.SQL + " ORDER BY id"
	args := append([]any(nil), pred.Args...)
	if limit > 0 || offset > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limitOrAll(limit), offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("select ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrap("select ids", err)
		}
		ids = append(ids, id)
	}
	return ids, wrap("select ids", rows.Err())
}

// Close implements recdex.Store.
func (s *Store) Close() error {
	return wrap("close", s.db.Close())
}

func (s *Store) tagsOf(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, value FROM record_tags WHERE record_id = ? ORDER BY slot, value", id)
	if err != nil {
		return nil, wrap("tags", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var slot, value string
		if err := rows.Scan(&slot, &value); err != nil {
			return nil, wrap("tags", err)
		}
		tags = append(tags, recdex.Tag(slot, value))
	}
	return tags, wrap("tags", rows.Err())
}

func (s *Store) attachTags(ctx context.Context, recs []*recdex.Record) error {
	if len(recs) == 0 {
		return nil
	}
	byID := make(map[int64]*recdex.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT record_id, slot, value FROM record_tags ORDER BY slot, value")
	if err != nil {
		return wrap("tags", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var slot, value string
		if err := rows.Scan(&id, &slot, &value); err != nil {
			return wrap("tags", err)
		}
		if rec, ok := byID[id]; ok {
			rec.Tags = append(rec.Tags, recdex.Tag(slot, value))
		}
	}
	return wrap("tags", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*recdex.Record, error) {
	var rec recdex.Record
	var meta, ts string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Content, &rec.Priority, &meta, &ts); err != nil {
		return nil, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("decode timestamp: %w", err)
		}
		rec.Timestamp = parsed
	}
	return &rec, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1 // sqlite: no limit
	}
	return limit
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
