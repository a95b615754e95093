// Package facet is the relational search engine. Filters compile to
// SQL predicates; queries run either straight against the store's own
// relation (inplace) or against an engine-owned shadow relation kept in
// step by explicit Sync.
package facet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/engine"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/filter/sqlgen"
	"github.com/kailas-cloud/recdex/store/dbstore"
)

// Engine compiles filters via sqlgen and runs them over a relational
// index: the bound store's relation in inplace mode, an engine-owned
// sqlite relation in shadow mode.
type Engine struct {
	base engine.Base
	rel  *dbstore.Store
	// columns limits what Sync projects into the shadow relation;
	// empty means every field.
	columns map[string]bool
}

var _ engine.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*options)

type options struct {
	inplace    bool
	shadowPath string
	columns    []string
	facets     filter.Node
	logger     *zap.Logger
}

// WithInplace selects inplace mode: queries run against the store's
// own relation and mutators are no-ops. Requires a *dbstore.Store.
func WithInplace() Option {
	return func(o *options) { o.inplace = true }
}

// WithShadowPath sets the shadow relation's database path. Default is
// an in-memory database.
func WithShadowPath(path string) Option {
	return func(o *options) { o.shadowPath = path }
}

// WithColumns limits the fields Sync copies into the shadow relation.
// The id always survives projection.
func WithColumns(cols ...string) Option {
	return func(o *options) { o.columns = cols }
}

// WithFacets sets global conditions ANDed into every search.
func WithFacets(fields ...filter.FieldExpr) Option {
	return func(o *options) { o.facets = filter.Expr(fields...) }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New binds a facet engine to a store. Inplace mode against anything
// but a relational store is a *engine.ConfigError.
func New(store recdex.Store, opts ...Option) (*Engine, error) {
	o := options{shadowPath: ":memory:"}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{base: engine.NewBase(store, o.inplace, o.facets, o.logger)}
	if len(o.columns) > 0 {
		e.columns = make(map[string]bool, len(o.columns))
		for _, col := range o.columns {
			e.columns[col] = true
		}
	}

	if o.inplace {
		db, ok := store.(*dbstore.Store)
		if !ok {
			return nil, &engine.ConfigError{
				Engine: "facet",
				Msg:    "inplace mode requires a relational store, got kind " + store.Kind(),
			}
		}
		e.rel = db
		return e, nil
	}

	shadow, err := dbstore.Open(o.shadowPath)
	if err != nil {
		return nil, err
	}
	e.rel = shadow
	return e, nil
}

// Kind implements engine.Engine.
func (e *Engine) Kind() string { return "facet" }

// Search implements engine.Engine.
func (e *Engine) Search(ctx context.Context, req *engine.Request) (_ []engine.Result, err error) {
	defer engine.ObserveSearch("facet", time.Now(), &err)

	node := e.base.Merge(req.Filter)
	pred, err := sqlgen.Compile(node, e.rel.Schema(), e.rel.Dialect())
	if err != nil {
		return nil, err
	}
	recs, err := e.rel.Select(ctx, pred, req.TopK, req.Offset)
	if err != nil {
		return nil, err
	}
	results := make([]engine.Result, len(recs))
	for i, rec := range recs {
		results[i] = engine.Result{ID: rec.ID, Record: rec, CompiledQuery: pred.SQL}
	}
	return engine.Project(results, req), nil
}

// Sync implements engine.Engine: rebuilds the shadow relation from the
// store, applying the column projection. No-op inplace.
func (e *Engine) Sync(ctx context.Context) error {
	if e.base.Inplace() {
		return nil
	}
	defer engine.ObserveSync("facet", time.Now())

	recs, err := e.base.Store().All(ctx)
	if err != nil {
		return err
	}
	if err := e.rel.Clear(ctx); err != nil {
		return err
	}
	projected := make([]*recdex.Record, len(recs))
	for i, rec := range recs {
		projected[i] = e.project(rec)
	}
	e.base.Logger().Debug("shadow relation synced", zap.Int("records", len(projected)))
	return e.rel.BatchUpsert(ctx, projected)
}

// Upsert implements engine.Engine.
func (e *Engine) Upsert(ctx context.Context, rec *recdex.Record) error {
	if e.base.Inplace() {
		return nil
	}
	return e.rel.Upsert(ctx, e.project(rec))
}

// Remove implements engine.Engine.
func (e *Engine) Remove(ctx context.Context, key any) error {
	if e.base.Inplace() {
		return nil
	}
	return e.rel.Remove(ctx, key)
}

// Clear implements engine.Engine.
func (e *Engine) Clear(ctx context.Context) error {
	if e.base.Inplace() {
		return nil
	}
	return e.rel.Clear(ctx)
}

// BatchUpsert implements engine.Engine.
func (e *Engine) BatchUpsert(ctx context.Context, recs []*recdex.Record) error {
	if e.base.Inplace() {
		return nil
	}
	projected := make([]*recdex.Record, len(recs))
	for i, rec := range recs {
		projected[i] = e.project(rec)
	}
	return e.rel.BatchUpsert(ctx, projected)
}

// BatchRemove implements engine.Engine.
func (e *Engine) BatchRemove(ctx context.Context, keys []any) error {
	if e.base.Inplace() {
		return nil
	}
	return e.rel.BatchRemove(ctx, keys)
}

// Close implements engine.Engine. The store's own relation is left
// open; only a shadow relation is released.
func (e *Engine) Close() error {
	if e.base.Inplace() {
		return nil
	}
	return e.rel.Close()
}

// project copies a record, keeping only the configured columns.
func (e *Engine) project(rec *recdex.Record) *recdex.Record {
	if e.columns == nil {
		return rec
	}
	out := &recdex.Record{ID: rec.ID}
	if e.columns["name"] {
		out.Name = rec.Name
	}
	if e.columns["type"] {
		out.Type = rec.Type
	}
	if e.columns["content"] {
		out.Content = rec.Content
	}
	if e.columns["priority"] {
		out.Priority = rec.Priority
	}
	if e.columns["tags"] {
		out.Tags = append([]string(nil), rec.Tags...)
	}
	if e.columns["metadata"] {
		out.Metadata = rec.Metadata
	}
	if e.columns["timestamp"] {
		out.Timestamp = rec.Timestamp
	}
	return out
}
