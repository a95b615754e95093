// Package docstore adapts a document-database client into an entity
// store. Records are stored as documents with tags broken out into
// slot/value elements so NF filters can use $elemMatch.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/filter/mqlgen"
)

// Client is the consumer interface for the backing document database.
// Find applies a query in the mqlgen dialect; results are ordered by id.
type Client interface {
	Find(ctx context.Context, query mqlgen.M, limit, offset int) ([]mqlgen.M, error)
	Upsert(ctx context.Context, docs []mqlgen.M) error
	// Insert skips documents whose id already exists.
	Insert(ctx context.Context, docs []mqlgen.M) error
	Remove(ctx context.Context, ids []int64) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Store is a recdex.Store over a Client.
type Store struct {
	client Client
	logger *zap.Logger
}

var _ recdex.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New wraps a document client.
func New(client Client, opts ...Option) *Store {
	s := &Store{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind implements recdex.Store.
func (s *Store) Kind() string { return "doc" }

// Client exposes the backing client for the doc search engine.
func (s *Store) Client() Client { return s.client }

// Find runs a compiled query, decoding matches into records. The
// never-match sentinel short-circuits without touching the backend.
func (s *Store) Find(ctx context.Context, query mqlgen.M, limit, offset int) ([]*recdex.Record, error) {
	if mqlgen.IsNeverMatch(query) {
		return nil, nil
	}
	docs, err := s.client.Find(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	recs := make([]*recdex.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := DecodeRecord(doc)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Has implements recdex.Store.
func (s *Store) Has(ctx context.Context, key any) (bool, error) {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return false, err
	}
	docs, err := s.client.Find(ctx, mqlgen.M{"id": id}, 1, 0)
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// Get implements recdex.Store.
func (s *Store) Get(ctx context.Context, key any) (*recdex.Record, error) {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return nil, err
	}
	recs, err := s.Find(ctx, mqlgen.M{"id": id}, 1, 0)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Upsert implements recdex.Store.
func (s *Store) Upsert(ctx context.Context, rec *recdex.Record) error {
	return s.client.Upsert(ctx, []mqlgen.M{EncodeRecord(rec)})
}

// Insert implements recdex.Store.
func (s *Store) Insert(ctx context.Context, rec *recdex.Record) error {
	return s.client.Insert(ctx, []mqlgen.M{EncodeRecord(rec)})
}

// Remove implements recdex.Store.
func (s *Store) Remove(ctx context.Context, key any) error {
	return s.BatchRemove(ctx, []any{key})
}

// Clear implements recdex.Store.
func (s *Store) Clear(ctx context.Context) error {
	return s.client.Clear(ctx)
}

// Len implements recdex.Store.
func (s *Store) Len(ctx context.Context) (int, error) {
	return s.client.Count(ctx)
}

// All implements recdex.Store.
func (s *Store) All(ctx context.Context) ([]*recdex.Record, error) {
	return s.Find(ctx, mqlgen.M{}, 0, 0)
}

// BatchUpsert implements recdex.Store.
func (s *Store) BatchUpsert(ctx context.Context, recs []*recdex.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return s.client.Upsert(ctx, encodeAll(recs))
}

// BatchInsert implements recdex.Store.
func (s *Store) BatchInsert(ctx context.Context, recs []*recdex.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return s.client.Insert(ctx, encodeAll(recs))
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
	return s.client.Remove(ctx, ids)
}

// Close implements recdex.Store.
func (s *Store) Close() error { return nil }

func encodeAll(recs []*recdex.Record) []mqlgen.M {
	docs := make([]mqlgen.M, len(recs))
	for i, rec := range recs {
		docs[i] = EncodeRecord(rec)
	}
	return docs
}

// EncodeRecord renders a record as a document. Tags become slot/value
// elements; the canonical string is kept alongside for round trips.
func EncodeRecord(rec *recdex.Record) mqlgen.M {
	doc := mqlgen.M{
		"id":       rec.ID,
		"name":     rec.Name,
		"type":     rec.Type,
		"content":  rec.Content,
		"priority": rec.Priority,
	}
	if len(rec.Tags) > 0 {
		tags := make([]any, 0, len(rec.Tags))
		for _, tag := range rec.Tags {
			slot, value, ok := recdex.SplitTag(tag)
			if !ok {
				continue
			}
			tags = append(tags, mqlgen.M{"slot": slot, "value": value, "raw": tag})
		}
		doc["tags"] = tags
	}
	if len(rec.Metadata) > 0 {
		doc["metadata"] = rec.Metadata
	}
	if !rec.Timestamp.IsZero() {
		doc["timestamp"] = rec.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return doc
}

// DecodeRecord rebuilds a record from its document form.
func DecodeRecord(doc mqlgen.M) (*recdex.Record, error) {
	id, err := recdex.KeyOf(doc["id"])
	if err != nil {
		return nil, fmt.Errorf("document id: %w", err)
	}
	rec := &recdex.Record{ID: id}
	rec.Name, _ = doc["name"].(string)
	rec.Type, _ = doc["type"].(string)
	rec.Content, _ = doc["content"].(string)
	switch p := doc["priority"].(type) {
	case int:
		rec.Priority = p
	case int64:
		rec.Priority = int(p)
	case float64:
		rec.Priority = int(p)
	}
	if tags, ok := doc["tags"].([]any); ok {
		for _, t := range tags {
			elem, ok := t.(map[string]any)
			if !ok {
				continue
			}
			if raw, ok := elem["raw"].(string); ok {
				rec.Tags = append(rec.Tags, raw)
				continue
			}
			slot, _ := elem["slot"].(string)
			value, _ := elem["value"].(string)
			rec.Tags = append(rec.Tags, recdex.Tag(slot, value))
		}
	}
	if meta, ok := doc["metadata"].(map[string]any); ok {
		rec.Metadata = meta
	}
	if ts, ok := doc["timestamp"].(string); ok && ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("document timestamp: %w", err)
		}
		rec.Timestamp = parsed
	}
	return rec, nil
}
