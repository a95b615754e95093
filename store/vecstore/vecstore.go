// Package vecstore adapts a vector-database client into an entity store
// with similarity search. Records are stored as field maps alongside
// their embedding; filters compile through vecgen.
package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/filter/vecgen"
)

// Doc is the client-level document: flat string fields plus an optional
// embedding. A nil Vector on Put leaves any stored vector in place.
type Doc struct {
	ID     int64
	Fields map[string]string
	Vector []float32
}

// Hit is one similarity search result.
type Hit struct {
	ID     int64
	Score  float64
	Fields map[string]string
}

// Client is the consumer interface for the backing vector database.
type Client interface {
	Put(ctx context.Context, docs []Doc) error
	Get(ctx context.Context, id int64) (*Doc, error)
	Remove(ctx context.Context, ids []int64) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	IDs(ctx context.Context) ([]int64, error)
	// Search returns the k nearest documents passing the filter,
	// best first. A nil filter matches everything.
	Search(ctx context.Context, vector []float32, k int, f *vecgen.Filter) ([]Hit, error)
	Close() error
}

// Match pairs a decoded record with its similarity score.
type Match struct {
	Record *recdex.Record
	Score  float64
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

// New wraps a vector client.
func New(client Client, opts ...Option) *Store {
	s := &Store{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind implements recdex.Store.
func (s *Store) Kind() string { return "vector" }

// Client exposes the backing client for the vector search engine.
func (s *Store) Client() Client { return s.client }

// Search runs a KNN query constrained by an optional filter tree.
func (s *Store) Search(ctx context.Context, vector []float32, k int, node filter.Node) ([]Match, error) {
	f, err := vecgen.Compile(node)
	if err != nil {
		return nil, err
	}
	if f.Never() {
		return nil, nil
	}
	hits, err := s.client.Search(ctx, vector, k, f)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		rec, err := recordFromFields(hit.Fields)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// return-field projection dropped the payload, refetch
			doc, err := s.client.Get(ctx, hit.ID)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				continue
			}
			if rec, err = recordFromFields(doc.Fields); err != nil {
				return nil, err
			}
		}
		if rec == nil {
			continue
		}
		matches = append(matches, Match{Record: rec, Score: hit.Score})
	}
	return matches, nil
}

// UpsertVector writes a record together with its embedding.
func (s *Store) UpsertVector(ctx context.Context, rec *recdex.Record, vector []float32) error {
	doc, err := EncodeDoc(rec, vector)
	if err != nil {
		return err
	}
	return s.client.Put(ctx, []Doc{doc})
}

// Has implements recdex.Store.
func (s *Store) Has(ctx context.Context, key any) (bool, error) {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return false, err
	}
	doc, err := s.client.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// Get implements recdex.Store.
func (s *Store) Get(ctx context.Context, key any) (*recdex.Record, error) {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return nil, err
	}
	doc, err := s.client.Get(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	return recordFromFields(doc.Fields)
}

// Upsert implements recdex.Store. The stored vector, if any, survives.
func (s *Store) Upsert(ctx context.Context, rec *recdex.Record) error {
	return s.UpsertVector(ctx, rec, nil)
}

// Insert implements recdex.Store.
func (s *Store) Insert(ctx context.Context, rec *recdex.Record) error {
	ok, err := s.Has(ctx, rec.ID)
	if err != nil || ok {
		return err
	}
	return s.Upsert(ctx, rec)
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
	return s.client.Len(ctx)
}

// All implements recdex.Store.
func (s *Store) All(ctx context.Context) ([]*recdex.Record, error) {
	ids, err := s.client.IDs(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]*recdex.Record, 0, len(ids))
	for _, id := range ids {
		doc, err := s.client.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		rec, err := recordFromFields(doc.Fields)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// BatchUpsert implements recdex.Store.
func (s *Store) BatchUpsert(ctx context.Context, recs []*recdex.Record) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]Doc, len(recs))
	for i, rec := range recs {
		doc, err := EncodeDoc(rec, nil)
		if err != nil {
			return err
		}
		docs[i] = doc
	}
	return s.client.Put(ctx, docs)
}

// BatchInsert implements recdex.Store.
func (s *Store) BatchInsert(ctx context.Context, recs []*recdex.Record) error {
	for _, rec := range recs {
		if err := s.Insert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
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
func (s *Store) Close() error { return s.client.Close() }

// EncodeDoc flattens a record into the document field map. The full
// record travels in the "record" field; filterable attributes are
// broken out so the backing index can match on them. Tags are joined
// with commas, matching the tag separator declared by the drivers.
func EncodeDoc(rec *recdex.Record, vector []float32) (Doc, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return Doc{}, fmt.Errorf("encode record %d: %w", rec.ID, err)
	}
	fields := map[string]string{
		"record":   string(data),
		"id":       strconv.FormatInt(rec.ID, 10),
		"name":     rec.Name,
		"type":     rec.Type,
		"content":  rec.Content,
		"priority": strconv.Itoa(rec.Priority),
	}
	if len(rec.Tags) > 0 {
		fields["tags"] = strings.Join(rec.Tags, ",")
	}
	return Doc{ID: rec.ID, Fields: fields, Vector: vector}, nil
}

// recordFromFields decodes the record payload, or returns nil when the
// field map does not carry one.
func recordFromFields(fields map[string]string) (*recdex.Record, error) {
	data, ok := fields["record"]
	if !ok || data == "" {
		return nil, nil
	}
	var rec recdex.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
