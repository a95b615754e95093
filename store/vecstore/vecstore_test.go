package vecstore_test

import (
	"context"
	"testing"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/store/vecstore"
	"github.com/kailas-cloud/recdex/store/vecstore/memvec"
)

func seeded(t *testing.T) *vecstore.Store {
	t.Helper()
	ctx := context.Background()
	s := vecstore.New(memvec.New())
	recs := []struct {
		rec *recdex.Record
		vec []float32
	}{
		{&recdex.Record{ID: 1, Name: "alpha", Type: "note", Priority: 5,
			Tags: []string{recdex.Tag("topic", "math")}}, []float32{1, 0, 0}},
		{&recdex.Record{ID: 2, Name: "beta", Type: "note", Priority: 1,
			Tags: []string{recdex.Tag("topic", "art")}}, []float32{0.9, 0.1, 0}},
		{&recdex.Record{ID: 3, Name: "gamma", Type: "task", Priority: 9}, []float32{0, 1, 0}},
	}
	for _, r := range recs {
		if err := s.UpsertVector(ctx, r.rec, r.vec); err != nil {
			t.Fatalf("UpsertVector: %v", err)
		}
	}
	return s
}

func TestSearchRanksBySimilarity(t *testing.T) {
	s := seeded(t)
	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 || matches[0].Record.ID != 1 || matches[1].Record.ID != 2 {
		t.Fatalf("matches = %+v", matches)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("scores out of order: %v then %v", matches[0].Score, matches[1].Score)
	}
}

func TestSearchWithFilter(t *testing.T) {
	s := seeded(t)
	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 10,
		filter.Expr(filter.F("type", "note"), filter.F("priority", filter.Lt{Value: 3})))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Record.ID != 2 {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestSearchTagMembership(t *testing.T) {
	s := seeded(t)
	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 10,
		filter.Expr(filter.F("tags", recdex.Tag("topic", "math"))))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Record.ID != 1 {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestSearchNeverMatchShortCircuits(t *testing.T) {
	s := seeded(t)
	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 10, filter.Or{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %+v", matches)
	}
}

func TestUpsertKeepsVector(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	if err := s.Upsert(ctx, &recdex.Record{ID: 1, Name: "alpha2", Type: "note"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	matches, err := s.Search(ctx, []float32{1, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Record.ID != 1 || matches[0].Record.Name != "alpha2" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	got, err := s.Get(ctx, "2")
	if err != nil || got == nil || got.Name != "beta" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	got, err = s.Get(ctx, 99)
	if err != nil || got != nil {
		t.Errorf("Get(absent) = %v, %v", got, err)
	}

	if err := s.Insert(ctx, &recdex.Record{ID: 2, Name: "clobber"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, _ = s.Get(ctx, 2)
	if got.Name != "beta" {
		t.Errorf("Insert overwrote existing record: %q", got.Name)
	}

	all, err := s.All(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("All = %d records, %v", len(all), err)
	}
	if all[0].ID != 1 || all[2].ID != 3 {
		t.Errorf("All order = %v", all)
	}

	if err := s.BatchRemove(ctx, []any{1, "1", 3}); err != nil {
		t.Fatalf("BatchRemove: %v", err)
	}
	n, _ := s.Len(ctx)
	if n != 1 {
		t.Errorf("Len = %d", n)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, _ = s.Len(ctx)
	if n != 0 {
		t.Errorf("Len after clear = %d", n)
	}
}
