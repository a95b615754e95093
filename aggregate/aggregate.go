// Package aggregate fans batch mutations out to named stores and
// engines. Callers address targets by name; a nil name list means every
// registered target, an explicit empty list means none.
package aggregate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/engine"
)

// Aggregator holds named stores and engines and applies batch
// mutations across them. Items may mix records and bare identifiers;
// both are normalized before fan-out and duplicates collapse.
type Aggregator struct {
	stores  map[string]recdex.Store
	engines map[string]engine.Engine
	logger  *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithStore registers a named store.
func WithStore(name string, s recdex.Store) Option {
	return func(a *Aggregator) { a.stores[name] = s }
}

// WithEngine registers a named engine.
func WithEngine(name string, e engine.Engine) Option {
	return func(a *Aggregator) { a.engines[name] = e }
}

// WithLogger sets the aggregator logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New builds an aggregator from named targets.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		stores:  make(map[string]recdex.Store),
		engines: make(map[string]engine.Engine),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns a registered store by name.
func (a *Aggregator) Store(name string) (recdex.Store, bool) {
	s, ok := a.stores[name]
	return s, ok
}

// Engine returns a registered engine by name.
func (a *Aggregator) Engine(name string) (engine.Engine, bool) {
	e, ok := a.engines[name]
	return e, ok
}

// BatchUpsert writes records to the selected stores and engines.
// Items must be records; duplicates by id collapse to the last one.
// names selects targets: nil for all, empty for none, unknown names
// are ignored.
func (a *Aggregator) BatchUpsert(ctx context.Context, items []any, names []string) error {
	recs, err := normalizeRecords(items)
	if err != nil {
		return err
	}
	for _, name := range a.selectStores(names) {
		if err := a.stores[name].BatchUpsert(ctx, recs); err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
	}
	for _, name := range a.selectEngines(names) {
		if err := a.engines[name].BatchUpsert(ctx, recs); err != nil {
			return fmt.Errorf("engine %s: %w", name, err)
		}
	}
	a.logger.Debug("batch upsert fanned out",
		zap.Int("records", len(recs)), zap.Strings("names", names))
	return nil
}

// BatchRemove deletes by identifier from the selected stores and
// engines. Items may mix records and identifiers; everything is
// normalized to ids and deduplicated. names selects targets as in
// BatchUpsert.
func (a *Aggregator) BatchRemove(ctx context.Context, items []any, names []string) error {
	// KeyOf accepts records and identifiers alike; Keys dedupes.
	ids, err := recdex.Keys(items)
	if err != nil {
		return err
	}
	keys := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = id
	}
	for _, name := range a.selectStores(names) {
		if err := a.stores[name].BatchRemove(ctx, keys); err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
	}
	for _, name := range a.selectEngines(names) {
		if err := a.engines[name].BatchRemove(ctx, keys); err != nil {
			return fmt.Errorf("engine %s: %w", name, err)
		}
	}
	a.logger.Debug("batch remove fanned out",
		zap.Int("keys", len(keys)), zap.Strings("names", names))
	return nil
}

// Sync synchronizes the selected engines.
func (a *Aggregator) Sync(ctx context.Context, names []string) error {
	for _, name := range a.selectEngines(names) {
		if err := a.engines[name].Sync(ctx); err != nil {
			return fmt.Errorf("engine %s: %w", name, err)
		}
	}
	return nil
}

// Close closes every registered store and engine, returning the first
// failure after attempting all.
func (a *Aggregator) Close() error {
	var first error
	for name, e := range a.engines {
		if err := e.Close(); err != nil && first == nil {
			first = fmt.Errorf("engine %s: %w", name, err)
		}
	}
	for name, s := range a.stores {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("store %s: %w", name, err)
		}
	}
	return first
}

// selectStores resolves the name selection against registered stores.
// nil means all, empty means none, unknown names drop silently.
func (a *Aggregator) selectStores(names []string) []string {
	if names == nil {
		out := make([]string, 0, len(a.stores))
		for name := range a.stores {
			out = append(out, name)
		}
		return out
	}
	var out []string
	for _, name := range names {
		if _, ok := a.stores[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (a *Aggregator) selectEngines(names []string) []string {
	if names == nil {
		out := make([]string, 0, len(a.engines))
		for name := range a.engines {
			out = append(out, name)
		}
		return out
	}
	var out []string
	for _, name := range names {
		if _, ok := a.engines[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// normalizeRecords collapses duplicate records by id, keeping the last
// occurrence and the original relative order of first sightings.
func normalizeRecords(items []any) ([]*recdex.Record, error) {
	var order []int64
	byID := make(map[int64]*recdex.Record, len(items))
	for _, item := range items {
		rec, ok := item.(*recdex.Record)
		if !ok {
			return nil, fmt.Errorf("batch upsert item %T: want *recdex.Record", item)
		}
		if _, seen := byID[rec.ID]; !seen {
			order = append(order, rec.ID)
		}
		byID[rec.ID] = rec
	}
	recs := make([]*recdex.Record, len(order))
	for i, id := range order {
		recs[i] = byID[id]
	}
	return recs, nil
}
