// Package cachestore adapts an injected key-value cache into an entity
// store. Records are serialized JSON; enumeration requires a cache that
// can list its keys.
package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
)

// Cache is the consumer interface for the backing cache.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Remove(key string)
	Len() int
	Purge()
}

// Enumerable is the optional listing capability. Caches without it make
// All return an *recdex.UnsupportedError.
type Enumerable interface {
	Keys() []string
}

// Store is a recdex.Store over a Cache.
type Store struct {
	cache  Cache
	logger *zap.Logger
}

var _ recdex.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New wraps a cache.
func New(cache Cache, opts ...Option) *Store {
	s := &Store{cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind implements recdex.Store.
func (s *Store) Kind() string { return "cache" }

// Has implements recdex.Store.
func (s *Store) Has(_ context.Context, key any) (bool, error) {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return false, err
	}
	_, ok := s.cache.Get(cacheKey(id))
	return ok, nil
}

// Get implements recdex.Store.
func (s *Store) Get(_ context.Context, key any) (*recdex.Record, error) {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return nil, err
	}
	data, ok := s.cache.Get(cacheKey(id))
	if !ok {
		return nil, nil
	}
	return decodeRecord(data)
}

// Upsert implements recdex.Store.
func (s *Store) Upsert(_ context.Context, rec *recdex.Record) error {
	return s.put(rec)
}

// Insert implements recdex.Store.
func (s *Store) Insert(_ context.Context, rec *recdex.Record) error {
	if _, ok := s.cache.Get(cacheKey(rec.ID)); ok {
		return nil
	}
	return s.put(rec)
}

func (s *Store) put(rec *recdex.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.ID, err)
	}
	s.cache.Set(cacheKey(rec.ID), data)
	return nil
}

// Remove implements recdex.Store.
func (s *Store) Remove(_ context.Context, key any) error {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return err
	}
	s.cache.Remove(cacheKey(id))
	return nil
}

// Clear implements recdex.Store.
func (s *Store) Clear(context.Context) error {
	s.cache.Purge()
	return nil
}

// Len implements recdex.Store.
func (s *Store) Len(context.Context) (int, error) {
	return s.cache.Len(), nil
}

// All implements recdex.Store. Requires an Enumerable cache.
func (s *Store) All(context.Context) ([]*recdex.Record, error) {
	enum, ok := s.cache.(Enumerable)
	if !ok {
		return nil, &recdex.UnsupportedError{Kind: "cache store", Op: "enumeration"}
	}
	keys := enum.Keys()
	recs := make([]*recdex.Record, 0, len(keys))
	for _, k := range keys {
		data, ok := s.cache.Get(k)
		if !ok {
			continue // evicted between listing and read
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// BatchUpsert implements recdex.Store.
func (s *Store) BatchUpsert(ctx context.Context, recs []*recdex.Record) error {
	for _, rec := range recs {
		if err := s.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
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
	for _, id := range ids {
		s.cache.Remove(cacheKey(id))
	}
	return nil
}

// Close implements recdex.Store.
func (s *Store) Close() error { return nil }

func cacheKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func decodeRecord(data []byte) (*recdex.Record, error) {
	var rec recdex.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
