package engine

import (
	"testing"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/filter"
)

func TestWantsDefaults(t *testing.T) {
	req := &Request{}
	if !req.Wants(IncludeID) || !req.Wants(IncludeRecord) {
		t.Fatal("empty include must default to id and record")
	}
	if req.Wants(IncludeScore) || req.Wants(IncludeMatches) {
		t.Fatal("empty include must not default to score or matches")
	}

	req = &Request{Include: []Include{IncludeScore}}
	if req.Wants(IncludeID) || req.Wants(IncludeRecord) {
		t.Fatal("explicit include replaces the default set")
	}
	if !req.Wants(IncludeScore) {
		t.Fatal("explicit include not honored")
	}
}

func TestPaginate(t *testing.T) {
	results := []Result{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}

	cases := []struct {
		name   string
		topK   int
		offset int
		want   []int64
	}{
		{"all", 0, 0, []int64{1, 2, 3, 4}},
		{"top 2", 2, 0, []int64{1, 2}},
		{"offset 1", 0, 1, []int64{2, 3, 4}},
		{"page 2", 2, 2, []int64{3, 4}},
		{"offset past end", 0, 10, nil},
		{"topk past end", 10, 3, []int64{4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Paginate(append([]Result(nil), results...), tc.topK, tc.offset)
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if got[i].ID != tc.want[i] {
					t.Fatalf("ids[%d] = %d, want %d", i, got[i].ID, tc.want[i])
				}
			}
		})
	}
}

func TestProjectZeroesUnrequested(t *testing.T) {
	results := []Result{{
		ID:            1,
		Record:        &recdex.Record{ID: 1, Name: "alpha"},
		Score:         0.9,
		Matches:       []Span{{Start: 0, End: 5}},
		Query:         "alpha",
		CompiledQuery: "name = ?",
	}}

	got := Project(append([]Result(nil), results...), &Request{
		Include: []Include{IncludeID, IncludeScore},
	})
	r := got[0]
	if r.ID != 1 || r.Score != 0.9 {
		t.Fatalf("requested fields lost: %+v", r)
	}
	if r.Record != nil || r.Matches != nil || r.Query != "" || r.CompiledQuery != "" {
		t.Fatalf("unrequested fields survived: %+v", r)
	}
}

func TestMergeFacets(t *testing.T) {
	facets := filter.Expr(filter.F("type", "note"))
	b := NewBase(nil, true, facets, nil)

	if got := b.Merge(nil); got == nil {
		t.Fatal("nil filter must merge to the facets alone")
	}

	merged := b.Merge(filter.Expr(filter.F("priority", 1)))
	and, ok := merged.(filter.And)
	if !ok {
		t.Fatalf("merged = %T, want filter.And", merged)
	}
	if len(and.Nodes) != 2 {
		t.Fatalf("merged arity = %d, want 2", len(and.Nodes))
	}

	empty := NewBase(nil, true, nil, nil)
	if got := empty.Merge(nil); got != nil {
		t.Fatalf("no facets, nil filter must stay nil, got %v", got)
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Engine: "facet", Msg: "inplace mode requires a relational store"}
	want := "facet engine: inplace mode requires a relational store"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
