// Package scan is the brute-force search engine: every search walks
// the whole store and evaluates the filter locally.
package scan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/engine"
	"github.com/kailas-cloud/recdex/filter"
)

// Engine evaluates filters record by record over Store.All. Always
// inplace: the store is the single source of truth and mutators are
// no-ops.
type Engine struct {
	base engine.Base
}

var _ engine.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*options)

type options struct {
	facets filter.Node
	logger *zap.Logger
}

// WithFacets sets global conditions ANDed into every search.
func WithFacets(fields ...filter.FieldExpr) Option {
	return func(o *options) { o.facets = filter.Expr(fields...) }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New binds a scan engine to a store.
func New(store recdex.Store, opts ...Option) *Engine {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{base: engine.NewBase(store, true, o.facets, o.logger)}
}

// Kind implements engine.Engine.
func (e *Engine) Kind() string { return "scan" }

// Search implements engine.Engine. Results follow the store's natural
// iteration order; pagination slices after full evaluation.
func (e *Engine) Search(ctx context.Context, req *engine.Request) (_ []engine.Result, err error) {
	defer engine.ObserveSearch("scan", time.Now(), &err)

	node := e.base.Merge(req.Filter)
	recs, err := e.base.Store().All(ctx)
	if err != nil {
		return nil, err
	}
	var results []engine.Result
	for _, rec := range recs {
		ok, err := recdex.Eval(rec, node)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, engine.Result{ID: rec.ID, Record: rec})
	}
	results = engine.Paginate(results, req.TopK, req.Offset)
	return engine.Project(results, req), nil
}

// Upsert implements engine.Engine. No-op: the store is authoritative.
func (e *Engine) Upsert(context.Context, *recdex.Record) error { return nil }

// Remove implements engine.Engine. No-op.
func (e *Engine) Remove(context.Context, any) error { return nil }

// Clear implements engine.Engine. No-op.
func (e *Engine) Clear(context.Context) error { return nil }

// BatchUpsert implements engine.Engine. No-op.
func (e *Engine) BatchUpsert(context.Context, []*recdex.Record) error { return nil }

// BatchRemove implements engine.Engine. No-op.
func (e *Engine) BatchRemove(context.Context, []any) error { return nil }

// Sync implements engine.Engine. No-op: always current.
func (e *Engine) Sync(context.Context) error { return nil }

// Close implements engine.Engine.
func (e *Engine) Close() error { return nil }
