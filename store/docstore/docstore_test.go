package docstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/filter/mqlgen"
	"github.com/kailas-cloud/recdex/store/docstore"
	"github.com/kailas-cloud/recdex/store/docstore/memdoc"
)

func newStore() *docstore.Store {
	return docstore.New(memdoc.New())
}

func seed(t *testing.T, s *docstore.Store) {
	t.Helper()
	recs := []*recdex.Record{
		{ID: 1, Name: "alpha", Type: "note", Content: "hello world", Priority: 5,
			Tags: []string{recdex.Tag("topic", "math"), recdex.Tag("lang", "en")}},
		{ID: 2, Name: "beta", Type: "note", Content: "goodbye", Priority: 1,
			Tags: []string{recdex.Tag("topic", "art")}},
		{ID: 3, Name: "gamma", Type: "task", Content: "buy milk", Priority: 9,
			Metadata: map[string]any{"owner": map[string]any{"team": "core"}},
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	if err := s.BatchUpsert(context.Background(), recs); err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
}

func find(t *testing.T, s *docstore.Store, node filter.Node) []int64 {
	t.Helper()
	query, err := mqlgen.Compile(node)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	recs, err := s.Find(context.Background(), query, 0, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

func TestCRUDRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	seed(t, s)

	got, err := s.Get(ctx, "3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Name != "gamma" || got.Priority != 9 {
		t.Fatalf("Get = %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Errorf("timestamp lost in round trip")
	}
	if owner, ok := got.Metadata["owner"].(map[string]any); !ok || owner["team"] != "core" {
		t.Errorf("metadata = %v", got.Metadata)
	}

	got, err = s.Get(ctx, 99)
	if err != nil || got != nil {
		t.Errorf("Get(absent) = %v, %v", got, err)
	}

	if err := s.Insert(ctx, &recdex.Record{ID: 1, Name: "clobber"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, _ = s.Get(ctx, 1)
	if got.Name != "alpha" {
		t.Errorf("Insert overwrote existing record: %q", got.Name)
	}

	if err := s.BatchRemove(ctx, []any{1, "1", 2}); err != nil {
		t.Fatalf("BatchRemove: %v", err)
	}
	n, _ := s.Len(ctx)
	if n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestFindByField(t *testing.T) {
	s := newStore()
	seed(t, s)

	if ids := find(t, s, filter.Expr(filter.F("type", "note"))); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("type=note ids = %v", ids)
	}
	if ids := find(t, s, filter.Expr(filter.F("priority", filter.Gt{Value: 4}))); len(ids) != 2 {
		t.Errorf("priority>4 ids = %v", ids)
	}
	if ids := find(t, s, filter.Expr(filter.F("name", filter.Ilike{Pattern: "%AMM%"}))); len(ids) != 1 || ids[0] != 3 {
		t.Errorf("ilike ids = %v", ids)
	}
}

func TestFindByTagElement(t *testing.T) {
	s := newStore()
	seed(t, s)

	ids := find(t, s, filter.Expr(filter.F("tags", filter.NFMatch("topic", "math"))))
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("NF topic=math ids = %v", ids)
	}
	// Both conditions must hold on one element: record 1 has
	// [TOPIC:math] and [LANG:en] but no element with both.
	ids = find(t, s, filter.Expr(filter.F("tags", filter.NF{Conds: []filter.ElemCond{
		{Field: "slot", Op: filter.Eq{Value: "TOPIC"}},
		{Field: "value", Op: filter.Eq{Value: "en"}},
	}})))
	if len(ids) != 0 {
		t.Errorf("cross-element NF matched: %v", ids)
	}
}

func TestFindByMetadataPath(t *testing.T) {
	s := newStore()
	seed(t, s)

	ids := find(t, s, filter.Expr(filter.F("metadata", filter.JSONPath("owner.team", "core"))))
	if len(ids) != 1 || ids[0] != 3 {
		t.Errorf("json path ids = %v", ids)
	}
}

func TestVacuousQueries(t *testing.T) {
	s := newStore()
	seed(t, s)

	if ids := find(t, s, filter.And{}); len(ids) != 3 {
		t.Errorf("empty And ids = %v", ids)
	}
	if ids := find(t, s, filter.Or{}); len(ids) != 0 {
		t.Errorf("empty Or ids = %v", ids)
	}
	if ids := find(t, s, filter.Expr(filter.F("id", filter.In{Values: nil}))); len(ids) != 0 {
		t.Errorf("empty In ids = %v", ids)
	}
}

func TestFindPagination(t *testing.T) {
	s := newStore()
	seed(t, s)

	query, err := mqlgen.Compile(filter.And{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	recs, err := s.Find(context.Background(), query, 1, 1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != 2 {
		t.Errorf("page = %v", recs)
	}
}
