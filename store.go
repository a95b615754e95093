package recdex

import "context"

// Store is the entity store contract. Keys passed as any are normalized
// with KeyOf. Absence is not an error: Get returns (nil, nil) and Remove
// of a missing record is a no-op. Backend errors propagate verbatim.
type Store interface {
	// Kind names the backend ("sqlite", "cache", "doc", "vector").
	Kind() string

	Has(ctx context.Context, key any) (bool, error)
	// Get returns the record or (nil, nil) when absent.
	Get(ctx context.Context, key any) (*Record, error)
	// Upsert writes the record, replacing any existing one.
	Upsert(ctx context.Context, rec *Record) error
	// Insert writes the record only if absent; present is a no-op.
	Insert(ctx context.Context, rec *Record) error
	Remove(ctx context.Context, key any) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	// All returns every stored record. Backends that cannot enumerate
	// return an *UnsupportedError.
	All(ctx context.Context) ([]*Record, error)

	BatchUpsert(ctx context.Context, recs []*Record) error
	BatchInsert(ctx context.Context, recs []*Record) error
	// BatchRemove tolerates duplicates and missing keys.
	BatchRemove(ctx context.Context, keys []any) error

	Close() error
}

// GetOr returns the stored record or def when absent.
func GetOr(ctx context.Context, s Store, key any, def *Record) (*Record, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return def, nil
	}
	return rec, nil
}
