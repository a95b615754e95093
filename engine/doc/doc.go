// Package doc is the document-query engine. Filters compile via mqlgen
// and are pushed down to the document store backend, so pagination and
// matching happen server side.
package doc

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/engine"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/filter/mqlgen"
	"github.com/kailas-cloud/recdex/store/docstore"
)

// Engine pushes compiled document queries to a docstore. Inplace mode
// queries the bound store's own collection; shadow mode owns a second
// collection synchronized explicitly.
type Engine struct {
	base engine.Base
	idx  *docstore.Store
}

var _ engine.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*options)

type options struct {
	inplace bool
	shadow  docstore.Client
	facets  filter.Node
	logger  *zap.Logger
}

// WithInplace selects inplace mode: the bound store is queried directly
// and mutators are no-ops. Requires a *docstore.Store.
func WithInplace() Option {
	return func(o *options) { o.inplace = true }
}

// WithShadowClient sets the document client backing the shadow
// collection. Required in shadow mode.
func WithShadowClient(c docstore.Client) Option {
	return func(o *options) { o.shadow = c }
}

// WithFacets sets global conditions ANDed into every search.
func WithFacets(fields ...filter.FieldExpr) Option {
	return func(o *options) { o.facets = filter.Expr(fields...) }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New binds a document engine to a store.
func New(store recdex.Store, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{base: engine.NewBase(store, o.inplace, o.facets, o.logger)}

	if o.inplace {
		ds, ok := store.(*docstore.Store)
		if !ok {
			return nil, &engine.ConfigError{
				Engine: "doc",
				Msg:    "inplace mode requires a document store, got kind " + store.Kind(),
			}
		}
		e.idx = ds
		return e, nil
	}

	if o.shadow == nil {
		return nil, &engine.ConfigError{
			Engine: "doc",
			Msg:    "shadow mode requires a document client",
		}
	}
	e.idx = docstore.New(o.shadow)
	return e, nil
}

// Kind implements engine.Engine.
func (e *Engine) Kind() string { return "doc" }

// Search implements engine.Engine. The filter is compiled once and
// evaluated by the backend; offset and top-k are pushed down too.
func (e *Engine) Search(ctx context.Context, req *engine.Request) (_ []engine.Result, err error) {
	defer engine.ObserveSearch("doc", time.Now(), &err)

	node := e.base.Merge(req.Filter)
	query, err := mqlgen.Compile(node)
	if err != nil {
		return nil, err
	}

	recs, err := e.idx.Find(ctx, query, req.TopK, req.Offset)
	if err != nil {
		return nil, err
	}

	var compiled string
	if req.Wants(engine.IncludeCompiledQuery) {
		data, err := json.Marshal(query)
		if err != nil {
			return nil, err
		}
		compiled = string(data)
	}

	results := make([]engine.Result, len(recs))
	for i, rec := range recs {
		results[i] = engine.Result{
			ID:            rec.ID,
			Record:        rec,
			Query:         req.Query,
			CompiledQuery: compiled,
		}
	}
	return engine.Project(results, req), nil
}

// Upsert implements engine.Engine.
func (e *Engine) Upsert(ctx context.Context, rec *recdex.Record) error {
	if e.base.Inplace() {
		return nil
	}
	return e.idx.Upsert(ctx, rec)
}

// BatchUpsert implements engine.Engine.
func (e *Engine) BatchUpsert(ctx context.Context, recs []*recdex.Record) error {
	if e.base.Inplace() {
		return nil
	}
	return e.idx.BatchUpsert(ctx, recs)
}

// Remove implements engine.Engine.
func (e *Engine) Remove(ctx context.Context, key any) error {
	if e.base.Inplace() {
		return nil
	}
	return e.idx.Remove(ctx, key)
}

// BatchRemove implements engine.Engine.
func (e *Engine) BatchRemove(ctx context.Context, keys []any) error {
	if e.base.Inplace() {
		return nil
	}
	return e.idx.BatchRemove(ctx, keys)
}

// Clear implements engine.Engine.
func (e *Engine) Clear(ctx context.Context) error {
	if e.base.Inplace() {
		return nil
	}
	return e.idx.Clear(ctx)
}

// Sync implements engine.Engine: rebuilds the shadow collection from
// the store. No-op inplace.
func (e *Engine) Sync(ctx context.Context) error {
	if e.base.Inplace() {
		return nil
	}
	defer engine.ObserveSync("doc", time.Now())

	recs, err := e.base.Store().All(ctx)
	if err != nil {
		return err
	}
	if err := e.idx.Clear(ctx); err != nil {
		return err
	}
	if err := e.idx.BatchUpsert(ctx, recs); err != nil {
		return err
	}
	e.base.Logger().Debug("shadow collection synced", zap.Int("records", len(recs)))
	return nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error { return nil }
