package vector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/embed"
	"github.com/kailas-cloud/recdex/engine"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/store/cachestore"
	"github.com/kailas-cloud/recdex/store/vecstore"
	"github.com/kailas-cloud/recdex/store/vecstore/memvec"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (embed.Result, error) {
	f.calls++
	vec, ok := f.vectors[text]
	if !ok {
		return embed.Result{}, fmt.Errorf("no embedding for %q: %w", text, embed.ErrProvider)
	}
	return embed.Result{Vector: vec, TotalTokens: 1}, nil
}

func seedRecords() []*recdex.Record {
	return []*recdex.Record{
		{ID: 1, Name: "alpha", Type: "note", Priority: 1, Content: "cats and dogs"},
		{ID: 2, Name: "beta", Type: "note", Priority: 5, Content: "stock markets"},
		{ID: 3, Name: "gamma", Type: "task", Priority: 3, Content: "feline care"},
	}
}

func seedVectors() map[int64][]float32 {
	return map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
		3: {0.9, 0.1, 0},
	}
}

func newInplace(t *testing.T) (*Engine, *vecstore.Store) {
	t.Helper()
	vs := vecstore.New(memvec.New())
	ctx := context.Background()
	vectors := seedVectors()
	for _, rec := range seedRecords() {
		if err := vs.UpsertVector(ctx, rec, vectors[rec.ID]); err != nil {
			t.Fatalf("seed %d: %v", rec.ID, err)
		}
	}
	e, err := New(vs, WithInplace())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, vs
}

func ids(results []engine.Result) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestSearchByVectorRanksBySimilarity(t *testing.T) {
	e, _ := newInplace(t)

	results, err := e.Search(context.Background(), &engine.Request{
		Vector:  []float32{1, 0, 0},
		TopK:    2,
		Include: []engine.Include{engine.IncludeID, engine.IncludeScore},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := ids(results)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("ids = %v, want [1 3]", got)
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("scores not descending: %v %v", results[0].Score, results[1].Score)
	}
	if results[0].Record != nil {
		t.Fatal("record projected without being requested")
	}
}

func TestSearchByQueryTextEmbeds(t *testing.T) {
	vs := vecstore.New(memvec.New())
	ctx := context.Background()
	vectors := seedVectors()
	for _, rec := range seedRecords() {
		if err := vs.UpsertVector(ctx, rec, vectors[rec.ID]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	emb := &fakeEmbedder{vectors: map[string][]float32{"cats": {1, 0, 0}}}
	e, err := New(vs, WithInplace(), WithEmbedder(emb))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := e.Search(ctx, &engine.Request{Query: "cats", TopK: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("ids = %v, want [1]", ids(results))
	}
	if emb.calls != 1 {
		t.Fatalf("embedder calls = %d, want 1", emb.calls)
	}
}

func TestSearchRequiresVectorOrQuery(t *testing.T) {
	e, _ := newInplace(t)
	if _, err := e.Search(context.Background(), &engine.Request{}); err == nil {
		t.Fatal("expected error without vector or query")
	}
}

func TestSearchTextWithoutEmbedderFails(t *testing.T) {
	e, _ := newInplace(t)
	if _, err := e.Search(context.Background(), &engine.Request{Query: "cats"}); err == nil {
		t.Fatal("expected error: no embedder wired")
	}
}

func TestSearchWithFilter(t *testing.T) {
	vs := vecstore.New(memvec.New())
	ctx := context.Background()
	vectors := seedVectors()
	for _, rec := range seedRecords() {
		if err := vs.UpsertVector(ctx, rec, vectors[rec.ID]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	e, err := New(vs, WithInplace())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := e.Search(ctx, &engine.Request{
		Vector: []float32{1, 0, 0},
		TopK:   3,
		Filter: filter.Expr(filter.F("type", "task")),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 3 {
		t.Fatalf("ids = %v, want [3]", ids(results))
	}
}

func TestFacetsNarrowEverySearch(t *testing.T) {
	vs := vecstore.New(memvec.New())
	ctx := context.Background()
	vectors := seedVectors()
	for _, rec := range seedRecords() {
		if err := vs.UpsertVector(ctx, rec, vectors[rec.ID]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	e, err := New(vs, WithInplace(), WithFacets(filter.F("type", "note")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := e.Search(ctx, &engine.Request{Vector: []float32{1, 0, 0}, TopK: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.ID == 3 {
			t.Fatal("facet type=note must exclude id 3")
		}
	}
}

func TestInplaceMutatorsAreNoOps(t *testing.T) {
	e, vs := newInplace(t)
	ctx := context.Background()

	if err := e.Upsert(ctx, &recdex.Record{ID: 99, Name: "extra"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := e.Remove(ctx, int64(1)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, err := vs.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Fatalf("store len = %d after no-op mutators, want 3", n)
	}
}

func TestInplaceRequiresVectorStore(t *testing.T) {
	plain := cachestore.New(cachestore.NewMap())
	_, err := New(plain, WithInplace())
	if err == nil {
		t.Fatal("expected ConfigError for non-vector store")
	}
	var cfgErr *engine.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type = %T, want *engine.ConfigError", err)
	}
}

func TestShadowSyncAndSearch(t *testing.T) {
	ctx := context.Background()
	store := cachestore.New(cachestore.NewMap())
	for _, rec := range seedRecords() {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"cats and dogs": {1, 0, 0},
		"stock markets": {0, 1, 0},
		"feline care":   {0.9, 0.1, 0},
		"cats":          {1, 0, 0},
	}}
	e, err := New(store, WithShadowClient(memvec.New()), WithEmbedder(emb))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	results, err := e.Search(ctx, &engine.Request{Query: "cats", TopK: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := ids(results)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("ids = %v, want [1 3]", got)
	}
}

func TestShadowMutatorsApply(t *testing.T) {
	ctx := context.Background()
	store := cachestore.New(cachestore.NewMap())
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"cats and dogs": {1, 0, 0},
		"cats":          {1, 0, 0},
	}}
	e, err := New(store, WithShadowClient(memvec.New()), WithEmbedder(emb))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := &recdex.Record{ID: 1, Name: "alpha", Content: "cats and dogs"}
	if err := e.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	results, err := e.Search(ctx, &engine.Request{Query: "cats", TopK: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("ids = %v, want [1]", ids(results))
	}

	if err := e.Remove(ctx, int64(1)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	results, err = e.Search(ctx, &engine.Request{Query: "cats", TopK: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("ids = %v after remove, want none", ids(results))
	}
}

func TestOffsetPagination(t *testing.T) {
	e, _ := newInplace(t)
	results, err := e.Search(context.Background(), &engine.Request{
		Vector: []float32{1, 0, 0},
		TopK:   1,
		Offset: 1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 3 {
		t.Fatalf("ids = %v, want [3]", ids(results))
	}
}
