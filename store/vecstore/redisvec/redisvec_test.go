package redisvec

import (
	"testing"

	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/filter/vecgen"
)

func newBuilder() *Client {
	return &Client{numericFields: map[string]bool{"id": true, "priority": true}}
}

func compile(t *testing.T, n filter.Node) *vecgen.Filter {
	t.Helper()
	f, err := vecgen.Compile(n)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return f
}

func TestBuildFilter(t *testing.T) {
	c := newBuilder()
	tests := []struct {
		name string
		node filter.Node
		want string
	}{
		{"nil matches all", nil, ""},
		{"tag equality", filter.Expr(filter.F("type", "note")), "@type:{note}"},
		{"tag escaping", filter.Expr(filter.F("name", "a b-c")), `@name:{a\ b\-c}`},
		{"numeric equality", filter.Expr(filter.F("priority", 5)), "@priority:[5 5]"},
		{"gt", filter.Expr(filter.F("priority", filter.Gt{Value: 4})), "@priority:[(4 +inf]"},
		{"lte", filter.Expr(filter.F("priority", filter.Lte{Value: 4})), "@priority:[-inf 4]"},
		{
			"between",
			filter.Expr(filter.F("priority", filter.Between{Lo: 1, Hi: 9})),
			"(@priority:[1 +inf] @priority:[-inf 9])",
		},
		{
			"in over tags",
			filter.Expr(filter.F("type", filter.InOf("note", "task"))),
			"(@type:{note} | @type:{task})",
		},
		{
			"conjunction",
			filter.Expr(filter.F("type", "note"), filter.F("priority", filter.Gt{Value: 4})),
			"(@type:{note} @priority:[(4 +inf])",
		},
		{
			"disjunction",
			filter.OrOf(
				filter.Expr(filter.F("type", "note")),
				filter.Expr(filter.F("type", "task")),
			),
			"(@type:{note} | @type:{task})",
		},
		{
			"negation",
			filter.Not{Node: filter.Expr(filter.F("type", "note"))},
			"-@type:{note}",
		},
		{
			"text match",
			filter.Expr(filter.F("content", filter.Ilike{Pattern: "%hello world%"})),
			"@content:(hello world)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.buildFilter(compile(t, tt.node))
			if err != nil {
				t.Fatalf("buildFilter: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildFilter = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildFilterExistsUnsupported(t *testing.T) {
	c := newBuilder()
	_, err := c.buildFilter(compile(t, filter.Expr(filter.F("name", nil))))
	if err == nil {
		t.Fatal("expected error for existence filter")
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3}
	out := bytesToVector(vectorToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d", len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}
