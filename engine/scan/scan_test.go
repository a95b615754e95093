package scan

import (
	"context"
	"testing"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/engine"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/store/cachestore"
)

func newEngine(t *testing.T, opts ...Option) (*Engine, recdex.Store) {
	t.Helper()
	store := cachestore.New(cachestore.NewMap())
	ctx := context.Background()
	recs := []*recdex.Record{
		{ID: 1, Name: "alpha", Type: "note", Priority: 1, Tags: []string{recdex.Tag("lang", "go")}},
		{ID: 2, Name: "beta", Type: "note", Priority: 5, Tags: []string{recdex.Tag("lang", "py")}},
		{ID: 3, Name: "gamma", Type: "task", Priority: 3, Tags: []string{recdex.Tag("lang", "go"), recdex.Tag("env", "prod")}},
	}
	if err := store.BatchUpsert(ctx, recs); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return New(store, opts...), store
}

func ids(results []engine.Result) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestSearchEvaluatesLocally(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		node   filter.Node
		expect []int64
	}{
		{"by type", filter.Expr(filter.F("type", "note")), []int64{1, 2}},
		{"range", filter.Expr(filter.F("priority", filter.Gte{Value: 3})), []int64{2, 3}},
		{"tag", filter.Expr(filter.F("tags", filter.NFMatch("lang", "go"))), []int64{1, 3}},
		{"ilike", filter.Expr(filter.F("name", filter.Ilike{Pattern: "%AMM%"})), []int64{3}},
		{"nil filter", nil, []int64{1, 2, 3}},
		{"empty and", filter.And{}, []int64{1, 2, 3}},
		{"empty or", filter.Or{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := e.Search(ctx, &engine.Request{Filter: tc.node})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			got := ids(results)
			if len(got) != len(tc.expect) {
				t.Fatalf("ids = %v, want %v", got, tc.expect)
			}
			for i := range got {
				if got[i] != tc.expect[i] {
					t.Fatalf("ids = %v, want %v", got, tc.expect)
				}
			}
		})
	}
}

func TestFacetsNarrowEverySearch(t *testing.T) {
	e, _ := newEngine(t, WithFacets(filter.F("type", "note")))
	results, err := e.Search(context.Background(), &engine.Request{
		Filter: filter.Expr(filter.F("priority", filter.Gte{Value: 3})),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := ids(results); len(got) != 1 || got[0] != 2 {
		t.Fatalf("ids = %v, want [2]", got)
	}
}

func TestPagination(t *testing.T) {
	e, _ := newEngine(t)
	results, err := e.Search(context.Background(), &engine.Request{TopK: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := ids(results); len(got) != 1 || got[0] != 2 {
		t.Fatalf("ids = %v, want [2]", got)
	}
}

func TestProjectionDefaults(t *testing.T) {
	e, _ := newEngine(t)
	results, err := e.Search(context.Background(), &engine.Request{TopK: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].ID != 1 || results[0].Record == nil {
		t.Fatalf("default include must carry id and record: %+v", results[0])
	}

	results, err = e.Search(context.Background(), &engine.Request{
		TopK:    1,
		Include: []engine.Include{engine.IncludeID},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Record != nil {
		t.Fatal("record projected without being requested")
	}
}

func TestMutatorsAreNoOps(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()

	if err := e.Upsert(ctx, &recdex.Record{ID: 99}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Fatalf("store len = %d, want 3", n)
	}
}

func TestStoreMutationsVisibleImmediately(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, &recdex.Record{ID: 4, Name: "delta", Type: "note"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	results, err := e.Search(ctx, &engine.Request{Filter: filter.Expr(filter.F("type", "note"))})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := ids(results); len(got) != 3 {
		t.Fatalf("ids = %v, want 3 notes", got)
	}
}
