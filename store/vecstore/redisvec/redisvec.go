// Package redisvec is a vector store client over Redis 8+ using the
// FT.SEARCH vector similarity support via rueidis.
package redisvec

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/recdex/filter/vecgen"
	"github.com/kailas-cloud/recdex/store/vecstore"
)

const scoreField = "__vector_score"

// Config holds connection and index parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	// Index is the FT index name, Prefix the key prefix for documents.
	Index  string
	Prefix string

	// Dim is the embedding dimension; required to create the index.
	Dim int
	// Algo selects FLAT (default) or HNSW.
	Algo string
}

// Client implements vecstore.Client over rueidis.
type Client struct {
	client rueidis.Client
	cfg    Config

	// numericFields drive filter compilation: numeric range syntax
	// instead of tag matching.
	numericFields map[string]bool
}

var _ vecstore.Client = (*Client)(nil)

// New connects and ensures the index exists.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("vector dim must be positive")
	}
	if cfg.Index == "" {
		cfg.Index = "recdex"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "recdex:rec:"
	}
	if cfg.Algo == "" {
		cfg.Algo = "FLAT"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	c := &Client{
		client:        client,
		cfg:           cfg,
		numericFields: map[string]bool{"id": true, "priority": true},
	}
	if err := c.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	cmd := c.client.B().Ping().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until the server responds or timeout expires.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := c.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Close implements vecstore.Client.
func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) ensureIndex(ctx context.Context) error {
	args := []string{
		c.cfg.Index, "ON", "HASH",
		"PREFIX", "1", c.cfg.Prefix,
		"SCHEMA",
		"id", "NUMERIC",
		"name", "TAG",
		"type", "TAG",
		"priority", "NUMERIC",
		"tags", "TAG", "SEPARATOR", ",",
		"content", "TEXT",
		"vector", "VECTOR", c.cfg.Algo, "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(c.cfg.Dim),
		"DISTANCE_METRIC", "COSINE",
	}
	cmd := c.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("create index %s: %w", c.cfg.Index, err)
	}
	return nil
}

// DropIndex removes the index, keeping the documents.
func (c *Client) DropIndex(ctx context.Context) error {
	cmd := c.client.B().Arbitrary("FT.DROPINDEX").Args(c.cfg.Index).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "unknown index name") {
		return fmt.Errorf("drop index %s: %w", c.cfg.Index, err)
	}
	return nil
}

func (c *Client) key(id int64) string {
	return c.cfg.Prefix + strconv.FormatInt(id, 10)
}

// Put implements vecstore.Client. Documents go out in one DoMulti
// round-trip; HSET merges fields, so a doc without a vector keeps the
// stored one.
func (c *Client) Put(ctx context.Context, docs []vecstore.Doc) error {
	if len(docs) == 0 {
		return nil
	}
	cmds := make([]rueidis.Completed, len(docs))
	for i, doc := range docs {
		cmd := c.client.B().Hset().Key(c.key(doc.ID)).FieldValue()
		for k, v := range doc.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		if doc.Vector != nil {
			cmd = cmd.FieldValue("vector", vectorToBytes(doc.Vector))
		}
		cmds[i] = cmd.Build()
	}
	results := c.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return fmt.Errorf("put %d: %w", docs[i].ID, err)
		}
	}
	return nil
}

// Get implements vecstore.Client. Absent ids return (nil, nil).
func (c *Client) Get(ctx context.Context, id int64) (*vecstore.Doc, error) {
	cmd := c.client.B().Hgetall().Key(c.key(id)).Build()
	m, err := c.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("get %d: %w", id, err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	doc := &vecstore.Doc{ID: id, Fields: m}
	if raw, ok := m["vector"]; ok {
		doc.Vector = bytesToVector(raw)
		delete(m, "vector")
	}
	return doc, nil
}

// Remove implements vecstore.Client.
func (c *Client) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	cmd := c.client.B().Del().Key(keys...).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Clear implements vecstore.Client, deleting every document under the
// configured prefix.
func (c *Client) Clear(ctx context.Context) error {
	keys, err := c.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	cmd := c.client.B().Del().Key(keys...).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Len implements vecstore.Client via FT.SEARCH with LIMIT 0 0.
func (c *Client) Len(ctx context.Context) (int, error) {
	cmd := c.client.B().Arbitrary("FT.SEARCH").
		Args(c.cfg.Index, "*", "LIMIT", "0", "0").Build()
	raw, err := c.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// IDs implements vecstore.Client by scanning the key prefix.
func (c *Client) IDs(ctx context.Context) ([]int64, error) {
	keys, err := c.scan(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(key, c.cfg.Prefix), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) scan(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		cmd := c.client.B().Scan().Cursor(cursor).Match(c.cfg.Prefix + "*").Count(100).Build()
		res, err := c.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Search implements vecstore.Client: a KNN query with an optional
// pre-filter compiled from the filter tree.
func (c *Client) Search(ctx context.Context, vector []float32, k int, f *vecgen.Filter) ([]vecstore.Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if f.Never() {
		return nil, nil
	}

	filterStr, err := c.buildFilter(f)
	if err != nil {
		return nil, err
	}

	knnPart := fmt.Sprintf("[KNN %d @vector $BLOB]", k)
	queryStr := "*=>" + knnPart
	if filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	}

	args := []string{
		c.cfg.Index, queryStr,
		"RETURN", "3", "id", "record", scoreField,
		"LIMIT", "0", strconv.Itoa(k),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := c.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := c.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return parseKNNResult(raw)
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage) ([]vecstore.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]vecstore.Hit, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		m := parseFieldPairs(fields)

		hit := vecstore.Hit{Fields: m}
		if idStr, ok := m["id"]; ok {
			hit.ID, _ = strconv.ParseInt(idStr, 10, 64)
		}
		if scoreStr, ok := m[scoreField]; ok {
			if s, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				hit.Score = max(0, 1.0-s) // cosine distance to similarity, clamped
			}
			delete(m, scoreField)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter renders a compiled filter as an FT.SEARCH pre-filter
// query string. An empty string matches everything.
func (c *Client) buildFilter(f *vecgen.Filter) (string, error) {
	if f == nil {
		return "", nil
	}
	if f.Leaf() {
		return c.buildLeaf(f)
	}
	switch f.Cond {
	case vecgen.CondAnd:
		parts, err := c.buildParts(f.Filters)
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(parts, " ") + ")", nil
	case vecgen.CondOr:
		parts, err := c.buildParts(f.Filters)
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(parts, " | ") + ")", nil
	case vecgen.CondNot:
		if len(f.Filters) != 1 {
			return "", fmt.Errorf("not group must hold one filter, got %d", len(f.Filters))
		}
		sub, err := c.buildFilter(f.Filters[0])
		if err != nil {
			return "", err
		}
		return "-" + sub, nil
	}
	return "", fmt.Errorf("unknown filter cond %q", f.Cond)
}

func (c *Client) buildParts(subs []*vecgen.Filter) ([]string, error) {
	parts := make([]string, 0, len(subs))
	for _, sub := range subs {
		part, err := c.buildFilter(sub)
		if err != nil {
			return nil, err
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts, nil
}

func (c *Client) buildLeaf(f *vecgen.Filter) (string, error) {
	switch f.Op {
	case vecgen.OpEq:
		if c.numericFields[f.Key] {
			v, err := numericArg(f.Key, f.Value)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("@%s:[%g %g]", f.Key, v, v), nil
		}
		return buildTagFilter(f.Key, fmt.Sprint(f.Value)), nil
	case vecgen.OpGt:
		v, err := numericArg(f.Key, f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s:[(%g +inf]", f.Key, v), nil
	case vecgen.OpGte:
		v, err := numericArg(f.Key, f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s:[%g +inf]", f.Key, v), nil
	case vecgen.OpLt:
		v, err := numericArg(f.Key, f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s:[-inf (%g]", f.Key, v), nil
	case vecgen.OpLte:
		v, err := numericArg(f.Key, f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s:[-inf %g]", f.Key, v), nil
	case vecgen.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return "", fmt.Errorf("field %s: in requires a value list", f.Key)
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			if c.numericFields[f.Key] {
				n, err := numericArg(f.Key, v)
				if err != nil {
					return "", err
				}
				parts = append(parts, fmt.Sprintf("@%s:[%g %g]", f.Key, n, n))
			} else {
				parts = append(parts, buildTagFilter(f.Key, fmt.Sprint(v)))
			}
		}
		return "(" + strings.Join(parts, " | ") + ")", nil
	case vecgen.OpTextMatch, vecgen.OpTextMatchI:
		// TEXT fields are case-insensitive, both ops land here.
		want, _ := f.Value.(string)
		return fmt.Sprintf("@%s:(%s)", f.Key, escapeQuery(want)), nil
	case vecgen.OpExists:
		return "", fmt.Errorf("field %s: existence filters are not supported by the redis driver", f.Key)
	}
	return "", fmt.Errorf("unknown filter op %q", f.Op)
}

func numericArg(key string, v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("field %s: %v is not numeric", key, v)
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
	"[", "\\[",
	"]", "\\]",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func bytesToVector(s string) []float32 {
	if len(s) < 4 {
		return nil
	}
	v := make([]float32, len(s)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return v
}

// isRedisErr checks if err is a Redis server error containing substr
// (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
