package cachestore

import (
	"context"
	"testing"

	"github.com/kailas-cloud/recdex"
)

// newBlind hides the MapCache listing capability behind the plain
// Cache interface.
func newBlind() Cache {
	type blind struct{ Cache }
	return blind{Cache: NewMap()}
}

func TestLifecycleOverLRU(t *testing.T) {
	ctx := context.Background()
	cache, err := NewLRU(16)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	s := New(cache)

	r := &recdex.Record{ID: 1, Name: "alpha", Tags: []string{recdex.Tag("topic", "math")}}
	if err := s.Upsert(ctx, r); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	ok, err := s.Has(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Has = %v, %v", ok, err)
	}
	got, err := s.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "alpha" || len(got.Tags) != 1 {
		t.Errorf("Get = %+v", got)
	}

	if err := s.Insert(ctx, &recdex.Record{ID: 1, Name: "beta"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, _ = s.Get(ctx, 1)
	if got.Name != "alpha" {
		t.Errorf("Insert overwrote existing record: %q", got.Name)
	}

	if err := s.Remove(ctx, 1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, err = s.Get(ctx, 1)
	if err != nil || got != nil {
		t.Errorf("Get after remove = %v, %v", got, err)
	}
}

func TestBatchRemoveDedupes(t *testing.T) {
	ctx := context.Background()
	s := New(NewMap())
	for i := int64(1); i <= 3; i++ {
		if err := s.Upsert(ctx, &recdex.Record{ID: i}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := s.BatchRemove(ctx, []any{1, "1", 2, 2}); err != nil {
		t.Fatalf("BatchRemove: %v", err)
	}
	if err := s.BatchRemove(ctx, nil); err != nil {
		t.Fatalf("BatchRemove(nil): %v", err)
	}
	n, _ := s.Len(ctx)
	if n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := New(NewMap())
	for _, id := range []int64{3, 1, 2} {
		if err := s.Upsert(ctx, &recdex.Record{ID: id}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 || all[0].ID != 3 || all[1].ID != 1 || all[2].ID != 2 {
		t.Errorf("All = %v, want insertion order 3, 1, 2", all)
	}
}

func TestAllUnsupportedWithoutListing(t *testing.T) {
	s := New(newBlind())
	_, err := s.All(context.Background())
	if err == nil || !recdex.IsUnsupported(err) {
		t.Fatalf("All = %v, want UnsupportedError", err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := New(NewMap())
	if err := s.Upsert(ctx, &recdex.Record{ID: 1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, _ := s.Len(ctx)
	if n != 0 {
		t.Errorf("Len = %d", n)
	}
}
