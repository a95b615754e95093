// Package vector is the similarity search engine. Filters compile via
// vecgen; ranking is delegated to the vector store client. Queries
// carry an explicit vector or text embedded on the fly.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/embed"
	"github.com/kailas-cloud/recdex/engine"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/filter/vecgen"
	"github.com/kailas-cloud/recdex/store/vecstore"
)

// DefaultTopK bounds a search that does not say how many hits it wants.
const DefaultTopK = 10

// Engine runs KNN searches over a vector store. In inplace mode the
// bound store is the index; in shadow mode the engine owns a second
// vector collection synchronized explicitly.
type Engine struct {
	base     engine.Base
	idx      *vecstore.Store
	embedder embed.Embedder
}

var _ engine.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*options)

type options struct {
	inplace  bool
	shadow   vecstore.Client
	embedder embed.Embedder
	facets   filter.Node
	logger   *zap.Logger
}

// WithInplace selects inplace mode: the bound store is the queried
// index and mutators are no-ops. Requires a *vecstore.Store.
func WithInplace() Option {
	return func(o *options) { o.inplace = true }
}

// WithShadowClient sets the vector client backing the shadow
// collection. Required in shadow mode.
func WithShadowClient(c vecstore.Client) Option {
	return func(o *options) { o.shadow = c }
}

// WithEmbedder enables text queries and shadow-side embedding of
// record content.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithFacets sets global conditions ANDed into every search.
func WithFacets(fields ...filter.FieldExpr) Option {
	return func(o *options) { o.facets = filter.Expr(fields...) }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New binds a vector engine to a store.
func New(store recdex.Store, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		base:     engine.NewBase(store, o.inplace, o.facets, o.logger),
		embedder: o.embedder,
	}

	if o.inplace {
		vs, ok := store.(*vecstore.Store)
		if !ok {
			return nil, &engine.ConfigError{
				Engine: "vector",
				Msg:    "inplace mode requires a vector store, got kind " + store.Kind(),
			}
		}
		e.idx = vs
		return e, nil
	}

	if o.shadow == nil {
		return nil, &engine.ConfigError{
			Engine: "vector",
			Msg:    "shadow mode requires a vector client",
		}
	}
	e.idx = vecstore.New(o.shadow)
	return e, nil
}

// Kind implements engine.Engine.
func (e *Engine) Kind() string { return "vector" }

// Search implements engine.Engine. At least one of an explicit vector
// or embeddable query text must be supplied.
func (e *Engine) Search(ctx context.Context, req *engine.Request) (_ []engine.Result, err error) {
	defer engine.ObserveSearch("vector", time.Now(), &err)

	vec := req.Vector
	if len(vec) == 0 {
		if req.Query == "" {
			return nil, fmt.Errorf("vector search requires a vector or query text")
		}
		if e.embedder == nil {
			return nil, fmt.Errorf("text query requires an embedder")
		}
		res, err := e.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		vec = res.Vector
	}

	node := e.base.Merge(req.Filter)
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	matches, err := e.idx.Search(ctx, vec, topK+req.Offset, node)
	if err != nil {
		return nil, err
	}

	var compiled string
	if req.Wants(engine.IncludeCompiledQuery) {
		f, err := vecgen.Compile(node)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		compiled = string(data)
	}

	results := make([]engine.Result, len(matches))
	for i, m := range matches {
		results[i] = engine.Result{
			ID:            m.Record.ID,
			Record:        m.Record,
			Score:         m.Score,
			Query:         req.Query,
			CompiledQuery: compiled,
		}
	}
	results = engine.Paginate(results, topK, req.Offset)
	return engine.Project(results, req), nil
}

// Upsert implements engine.Engine. In shadow mode the record content
// is embedded when an embedder is wired; otherwise the document is
// stored without a vector and will not rank.
func (e *Engine) Upsert(ctx context.Context, rec *recdex.Record) error {
	if e.base.Inplace() {
		return nil
	}
	vec, err := e.embedRecord(ctx, rec)
	if err != nil {
		return err
	}
	return e.idx.UpsertVector(ctx, rec, vec)
}

// BatchUpsert implements engine.Engine.
func (e *Engine) BatchUpsert(ctx context.Context, recs []*recdex.Record) error {
	for _, rec := range recs {
		if err := e.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
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
	defer engine.ObserveSync("vector", time.Now())

	recs, err := e.base.Store().All(ctx)
	if err != nil {
		return err
	}
	if err := e.idx.Clear(ctx); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := e.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	e.base.Logger().Debug("shadow collection synced", zap.Int("records", len(recs)))
	return nil
}

// Close implements engine.Engine. The bound store stays open; only a
// shadow collection is released.
func (e *Engine) Close() error {
	if e.base.Inplace() {
		return nil
	}
	return e.idx.Close()
}

func (e *Engine) embedRecord(ctx context.Context, rec *recdex.Record) ([]float32, error) {
	if e.embedder == nil || rec.Content == "" {
		return nil, nil
	}
	res, err := e.embedder.Embed(ctx, rec.Content)
	if err != nil {
		return nil, err
	}
	return res.Vector, nil
}
