// Package substring is the multi-pattern substring search engine. An
// Aho-Corasick automaton over encoder-produced strings finds every
// occurrence in the query text; conflict policies resolve overlapping
// hits. Always shadow: mutations are buffered and only materialized by
// an explicit Flush, which rebuilds the automaton wholesale.
package substring

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/engine"
	"github.com/kailas-cloud/recdex/metrics"
)

// Encoder projects a record to zero or more candidate substrings.
type Encoder func(*recdex.Record) []string

// Normalizer rewrites indexed strings and query text before matching.
type Normalizer func(string) string

// Policy resolves overlapping hits.
type Policy string

const (
	// PolicyOverlap keeps every hit.
	PolicyOverlap Policy = "overlap"
	// PolicyLongest keeps only the longest hit per start position.
	PolicyLongest Policy = "longest"
	// PolicyLongestDistinct keeps the globally longest hits such that
	// no two selected hits overlap.
	PolicyLongestDistinct Policy = "longest_distinct"
)

// DefaultMinLength is the indexed-string length cutoff.
const DefaultMinLength = 2

// Snapshot framing: magic, version, gob payload.
var snapshotMagic = []byte("RXSS")

const snapshotVersion = byte(1)

type snapshot struct {
	Indexed map[int64][]string
}

// Engine is the substring search engine. Not safe for concurrent
// mutation; the automaton and buffers belong exclusively to this
// instance.
type Engine struct {
	base engine.Base
	path string

	encoder    Encoder
	normalizer Normalizer
	minLength  int
	policy     Policy
	wholeWord  bool

	// staged is the buffered index state; indexed is what the automaton
	// was last built from. Search reflects indexed only.
	staged  map[int64][]string
	indexed map[int64][]string

	auto   *automaton
	owners [][]int64 // per automaton pattern, the records carrying it
}

var _ engine.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithEncoder sets the record-to-strings projection. Default indexes
// the record name.
func WithEncoder(enc Encoder) Option {
	return func(e *Engine) { e.encoder = enc }
}

// WithNormalizer replaces the default case-folding normalizer.
func WithNormalizer(n Normalizer) Option {
	return func(e *Engine) { e.normalizer = n }
}

// WithMinLength sets the indexed-string length cutoff in runes.
func WithMinLength(n int) Option {
	return func(e *Engine) { e.minLength = n }
}

// WithPolicy sets the hit conflict policy. Default PolicyLongestDistinct.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithWholeWord requires hits to be bounded by non-word runes.
func WithWholeWord() Option {
	return func(e *Engine) { e.wholeWord = true }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.base = engine.NewBase(e.base.Store(), false, nil, l) }
}

// New binds a substring engine to a store. path names the snapshot
// file; when it holds a previously saved automaton the engine starts
// from it, and any load failure silently starts empty.
func New(store recdex.Store, path string, opts ...Option) *Engine {
	e := &Engine{
		base:       engine.NewBase(store, false, nil, nil),
		path:       path,
		minLength:  DefaultMinLength,
		policy:     PolicyLongestDistinct,
		normalizer: strings.ToLower,
		encoder:    func(rec *recdex.Record) []string { return []string{rec.Name} },
		staged:     make(map[int64][]string),
		indexed:    make(map[int64][]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.load()
	e.rebuild()
	return e
}

// Kind implements engine.Engine.
func (e *Engine) Kind() string { return "substring" }

// Len reports how many records the searchable index holds.
func (e *Engine) Len() int { return len(e.indexed) }

// Upsert implements engine.Engine: stages the record's strings. Not
// searchable until Flush.
func (e *Engine) Upsert(_ context.Context, rec *recdex.Record) error {
	e.staged[rec.ID] = e.encode(rec)
	return nil
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
func (e *Engine) Remove(_ context.Context, key any) error {
	id, err := recdex.KeyOf(key)
	if err != nil {
		return err
	}
	delete(e.staged, id)
	return nil
}

// BatchRemove implements engine.Engine.
func (e *Engine) BatchRemove(ctx context.Context, keys []any) error {
	for _, key := range keys {
		if err := e.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Clear implements engine.Engine: drops the staged buffer and the
// searchable index. Unlike Upsert and Remove it takes effect
// immediately, without a Flush.
func (e *Engine) Clear(context.Context) error {
	e.staged = make(map[int64][]string)
	e.indexed = make(map[int64][]string)
	e.rebuild()
	return nil
}

// Flush materializes the staged buffer into a fresh automaton. This is
// the explicit commit boundary: searches between a mutation and its
// Flush do not observe the mutation.
func (e *Engine) Flush() {
	e.indexed = make(map[int64][]string, len(e.staged))
	for id, strs := range e.staged {
		e.indexed[id] = append([]string(nil), strs...)
	}
	e.rebuild()
}

// Sync implements engine.Engine: stages every store record and
// flushes.
func (e *Engine) Sync(ctx context.Context) error {
	defer engine.ObserveSync("substring", time.Now())

	recs, err := e.base.Store().All(ctx)
	if err != nil {
		return err
	}
	e.staged = make(map[int64][]string, len(recs))
	for _, rec := range recs {
		e.staged[rec.ID] = e.encode(rec)
	}
	e.Flush()
	return nil
}

// Search implements engine.Engine. Matching is driven by the query
// text; the filter is evaluated locally against each hit's record. An
// empty query matches nothing. Request.Policy and Request.WholeWord
// override the constructed conflict handling for this call.
func (e *Engine) Search(ctx context.Context, req *engine.Request) (_ []engine.Result, err error) {
	defer engine.ObserveSearch("substring", time.Now(), &err)

	if req.Query == "" {
		return nil, nil
	}
	query := e.normalizer(req.Query)

	policy := e.policy
	if req.Policy != "" {
		policy = Policy(req.Policy)
	}
	wholeWord := e.wholeWord
	if req.WholeWord != nil {
		wholeWord = *req.WholeWord
	}

	occs := e.auto.find(query)
	if wholeWord {
		occs = wordBounded(occs, query)
	}
	occs = resolve(occs, policy)

	// group spans per record
	spans := make(map[int64][]engine.Span)
	var order []int64
	for _, occ := range occs {
		for _, id := range e.owners[occ.pattern] {
			if _, seen := spans[id]; !seen {
				order = append(order, id)
			}
			spans[id] = append(spans[id], engine.Span{Start: occ.start, End: occ.end})
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	node := e.base.Merge(req.Filter)
	results := make([]engine.Result, 0, len(order))
	for _, id := range order {
		var rec *recdex.Record
		if node != nil || req.Wants(engine.IncludeRecord) {
			rec, err = e.base.Store().Get(ctx, id)
			if err != nil {
				return nil, err
			}
		}
		if node != nil {
			if rec == nil {
				continue // indexed but gone from the store
			}
			ok, err := recdex.Eval(rec, node)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		r := engine.Result{ID: id, Matches: spans[id], Query: query}
		if req.Wants(engine.IncludeRecord) {
			r.Record = rec
		}
		results = append(results, r)
	}
	results = engine.Paginate(results, req.TopK, req.Offset)
	return engine.Project(results, req), nil
}

// Save persists the searchable index state to the snapshot path.
func (e *Engine) Save() error {
	var buf bytes.Buffer
	buf.Write(snapshotMagic)
	buf.WriteByte(snapshotVersion)
	if err := gob.NewEncoder(&buf).Encode(snapshot{Indexed: e.indexed}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(e.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Close implements engine.Engine, releasing the automaton.
func (e *Engine) Close() error {
	e.auto = nil
	e.owners = nil
	e.staged = nil
	e.indexed = nil
	return nil
}

// load restores a snapshot. Any failure means start empty; partial
// state is never recovered.
func (e *Engine) load() {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.base.Logger().Warn("snapshot unreadable, starting empty", zap.Error(err))
		}
		return
	}
	if len(data) < len(snapshotMagic)+1 ||
		!bytes.Equal(data[:len(snapshotMagic)], snapshotMagic) ||
		data[len(snapshotMagic)] != snapshotVersion {
		e.base.Logger().Warn("snapshot format mismatch, starting empty", zap.String("path", e.path))
		return
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data[len(snapshotMagic)+1:])).Decode(&snap); err != nil {
		e.base.Logger().Warn("snapshot corrupt, starting empty", zap.Error(err))
		return
	}
	if snap.Indexed == nil {
		snap.Indexed = make(map[int64][]string)
	}
	e.indexed = snap.Indexed
	e.staged = make(map[int64][]string, len(snap.Indexed))
	for id, strs := range snap.Indexed {
		e.staged[id] = append([]string(nil), strs...)
	}
}

// rebuild constructs the automaton from the indexed state.
func (e *Engine) rebuild() {
	start := time.Now()
	defer func() {
		metrics.AutomatonBuildDuration.Observe(time.Since(start).Seconds())
	}()

	ownersByPattern := make(map[string][]int64)
	for id, strs := range e.indexed {
		for _, s := range strs {
			ownersByPattern[s] = append(ownersByPattern[s], id)
		}
	}
	patterns := make([]string, 0, len(ownersByPattern))
	for pat := range ownersByPattern {
		patterns = append(patterns, pat)
	}
	sort.Strings(patterns)

	e.owners = make([][]int64, len(patterns))
	for i, pat := range patterns {
		ids := ownersByPattern[pat]
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		e.owners[i] = ids
	}
	e.auto = buildAutomaton(patterns)
}

// encode projects, normalizes and length-filters a record's strings.
func (e *Engine) encode(rec *recdex.Record) []string {
	var out []string
	for _, s := range e.encoder(rec) {
		s = e.normalizer(s)
		if runeLen(s) < e.minLength {
			continue
		}
		out = append(out, s)
	}
	return out
}

// wordBounded drops hits not delimited by non-word runes.
func wordBounded(occs []occurrence, query string) []occurrence {
	runes := []rune(query)
	out := occs[:0]
	for _, occ := range occs {
		if occ.start > 0 && isWordRune(runes[occ.start-1]) {
			continue
		}
		if occ.end < len(runes) && isWordRune(runes[occ.end]) {
			continue
		}
		out = append(out, occ)
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// resolve applies the conflict policy to raw occurrences.
func resolve(occs []occurrence, policy Policy) []occurrence {
	switch policy {
	case PolicyOverlap, "":
		return occs
	case PolicyLongest:
		longest := make(map[int]occurrence)
		for _, occ := range occs {
			best, ok := longest[occ.start]
			if !ok || occ.end > best.end {
				longest[occ.start] = occ
			}
		}
		out := make([]occurrence, 0, len(longest))
		for _, occ := range longest {
			out = append(out, occ)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
		return out
	case PolicyLongestDistinct:
		sorted := append([]occurrence(nil), occs...)
		sort.Slice(sorted, func(i, j int) bool {
			li, lj := sorted[i].end-sorted[i].start, sorted[j].end-sorted[j].start
			if li != lj {
				return li > lj
			}
			return sorted[i].start < sorted[j].start
		})
		var out []occurrence
		for _, occ := range sorted {
			overlaps := false
			for _, kept := range out {
				if occ.start < kept.end && kept.start < occ.end {
					overlaps = true
					break
				}
			}
			if !overlaps {
				out = append(out, occ)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
		return out
	}
	return occs
}
