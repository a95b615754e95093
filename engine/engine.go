// Package engine holds the machinery shared by the search engine
// variants: the request/result shapes, include projection, global
// facet merging and the inplace/shadow state common to every engine.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/metrics"
)

// Include names a result field to project. Searches return only the
// requested fields; an empty include list means id and record.
type Include string

const (
	IncludeID            Include = "id"
	IncludeRecord        Include = "record"
	IncludeScore         Include = "score"
	IncludeMatches       Include = "matches"
	IncludeQuery         Include = "query"
	IncludeCompiledQuery Include = "compiled_query"
)

// Span is one match occurrence in the query text, [Start, End).
type Span struct {
	Start int
	End   int
}

// Result is one search hit. Fields outside the requested include set
// are zero.
type Result struct {
	ID            int64
	Record        *recdex.Record
	Score         float64
	Matches       []Span
	Query         string
	CompiledQuery string
}

// Request carries the arguments common to every engine's Search.
// Filter constrains matches; Query and Vector feed the text and vector
// engines. TopK 0 means unlimited.
type Request struct {
	Filter  filter.Node
	Query   string
	Vector  []float32
	TopK    int
	Offset  int
	Include []Include

	// Policy and WholeWord override the substring engine's constructed
	// conflict handling for one call. Zero values keep the engine's own
	// settings; other engines ignore them.
	Policy    string
	WholeWord *bool
}

// Wants reports whether the request projects the given field.
func (r *Request) Wants(inc Include) bool {
	if len(r.Include) == 0 {
		return inc == IncludeID || inc == IncludeRecord
	}
	for _, have := range r.Include {
		if have == inc {
			return true
		}
	}
	return false
}

// ConfigError reports an engine wired against an incompatible store or
// option set. Raised at construction, never at query time.
type ConfigError struct {
	Engine string
	Msg    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s engine: %s", e.Engine, e.Msg)
}

// Engine is the operation set shared by all search engine variants.
// Mutators are no-ops on inplace engines; shadow engines apply them to
// their own index and require Sync (or the variant's flush) to pick up
// store-side changes.
type Engine interface {
	Kind() string
	Search(ctx context.Context, req *Request) ([]Result, error)
	Upsert(ctx context.Context, rec *recdex.Record) error
	Remove(ctx context.Context, key any) error
	Clear(ctx context.Context) error
	BatchUpsert(ctx context.Context, recs []*recdex.Record) error
	BatchRemove(ctx context.Context, keys []any) error
	Sync(ctx context.Context) error
	Close() error
}

// Base is the state shared by engine variants: the bound store, the
// global facet conditions and the inplace flag.
type Base struct {
	store   recdex.Store
	globals filter.Node
	inplace bool
	logger  *zap.Logger
}

// NewBase binds a store. facets, when non-nil, are ANDed into every
// search.
func NewBase(store recdex.Store, inplace bool, facets filter.Node, logger *zap.Logger) Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Base{store: store, globals: facets, inplace: inplace, logger: logger}
}

// Store returns the bound store.
func (b *Base) Store() recdex.Store { return b.store }

// Inplace reports whether the engine queries the store's own backend.
func (b *Base) Inplace() bool { return b.inplace }

// Logger returns the engine logger.
func (b *Base) Logger() *zap.Logger { return b.logger }

// Merge ANDs the global facet conditions into a search filter.
func (b *Base) Merge(n filter.Node) filter.Node {
	if b.globals == nil {
		return n
	}
	if n == nil {
		return b.globals
	}
	return filter.AndOf(b.globals, n)
}

// Paginate slices results by offset and top-k after evaluation.
func Paginate(results []Result, topK, offset int) []Result {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results
}

// ObserveSearch records one search call. Meant as a deferred call with
// a pointer to the named error result.
func ObserveSearch(kind string, start time.Time, err *error) {
	status := "success"
	if err != nil && *err != nil {
		status = "error"
	}
	metrics.SearchesTotal.WithLabelValues(kind, status).Inc()
	if status == "success" {
		metrics.SearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

// ObserveSync records one shadow index sync.
func ObserveSync(kind string, start time.Time) {
	metrics.SyncDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Project zeroes every field the request did not ask for.
func Project(results []Result, req *Request) []Result {
	for i := range results {
		r := &results[i]
		if !req.Wants(IncludeID) {
			r.ID = 0
		}
		if !req.Wants(IncludeRecord) {
			r.Record = nil
		}
		if !req.Wants(IncludeScore) {
			r.Score = 0
		}
		if !req.Wants(IncludeMatches) {
			r.Matches = nil
		}
		if !req.Wants(IncludeQuery) {
			r.Query = ""
		}
		if !req.Wants(IncludeCompiledQuery) {
			r.CompiledQuery = ""
		}
	}
	return results
}
