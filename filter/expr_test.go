package filter

import (
	"reflect"
	"testing"
)

func TestExprEmpty(t *testing.T) {
	if n := Expr(); n != nil {
		t.Fatalf("Expr() = %#v, want nil", n)
	}
}

func TestExprSingleField(t *testing.T) {
	n := Expr(F("status", "active"))
	want := Field{Name: "status", Op: Eq{Value: "active"}}
	if !reflect.DeepEqual(n, want) {
		t.Fatalf("Expr() = %#v, want %#v", n, want)
	}
}

func TestExprMultipleFieldsKeepOrder(t *testing.T) {
	n := Expr(
		F("status", "active"),
		F("version", "v1.0.0"),
	)
	and, ok := n.(And)
	if !ok {
		t.Fatalf("Expr() = %#v, want And", n)
	}
	if len(and.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(and.Nodes))
	}
	first := and.Nodes[0].(Field)
	second := and.Nodes[1].(Field)
	if first.Name != "status" || second.Name != "version" {
		t.Errorf("field order = %q, %q; want status, version", first.Name, second.Name)
	}
}

func TestToOp(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Op
	}{
		{"plain value", "active", Eq{Value: "active"}},
		{"int value", 42, Eq{Value: 42}},
		{"bool value", true, Eq{Value: true}},
		{"operator passthrough", Gt{Value: 50}, Gt{Value: 50}},
		{"nil checks existence", nil, Exists{}},
		{
			"value list",
			[]any{"active", "pending"},
			OpOr{Ops: []Op{In{Values: []any{"active", "pending"}}}},
		},
		{
			"mixed list keeps operators first",
			[]any{10, 20, Between{Lo: 50, Hi: 100}},
			OpOr{Ops: []Op{
				Between{Lo: 50, Hi: 100},
				In{Values: []any{10, 20}},
			}},
		},
		{
			"operator-only list",
			[]any{Gt{Value: 10}, Lt{Value: 5}},
			OpOr{Ops: []Op{Gt{Value: 10}, Lt{Value: 5}}},
		},
		{"empty list matches nothing", []any{}, OpOr{}},
		{"typed string slice", []string{"a", "b"}, OpOr{Ops: []Op{In{Values: []any{"a", "b"}}}}},
		{"two-element array is a range", [2]any{10, 90}, Between{Lo: 10, Hi: 90}},
		{"array with nil bound", [2]any{50, nil}, Between{Lo: 50, Hi: nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToOp(tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToOp(%#v) = %#v, want %#v", tt.value, got, tt.want)
			}
		})
	}
}

func TestNotOf(t *testing.T) {
	if got := NotOf(nil); !reflect.DeepEqual(got, NotExists{}) {
		t.Errorf("NotOf(nil) = %#v, want NotExists", got)
	}
	if got := NotOf("test"); !reflect.DeepEqual(got, OpNot{Op: Eq{Value: "test"}}) {
		t.Errorf("NotOf(test) = %#v", got)
	}
	want := OpNot{Op: Between{Lo: 0, Hi: 100}}
	if got := NotOf(Between{Lo: 0, Hi: 100}); !reflect.DeepEqual(got, want) {
		t.Errorf("NotOf(between) = %#v, want %#v", got, want)
	}
}

func TestNFMatch(t *testing.T) {
	nf := NFMatch("TOPIC", Like{Pattern: "%math%"})
	want := NF{Conds: []ElemCond{
		{Field: "slot", Op: Eq{Value: "TOPIC"}},
		{Field: "value", Op: Like{Pattern: "%math%"}},
	}}
	if !reflect.DeepEqual(nf, want) {
		t.Fatalf("NFMatch = %#v, want %#v", nf, want)
	}
}

// NFMatch canonicalizes the way Tag does, so mixed-case callers still
// hit tags stored as [SLOT:value].
func TestNFMatchCanonicalizesCase(t *testing.T) {
	tests := []struct {
		name  string
		slot  string
		value any
		want  NF
	}{
		{
			"plain value",
			"topic", "Math",
			NF{Conds: []ElemCond{
				{Field: "slot", Op: Eq{Value: "TOPIC"}},
				{Field: "value", Op: Eq{Value: "math"}},
			}},
		},
		{
			"like pattern",
			"Topic", Like{Pattern: "%Math%"},
			NF{Conds: []ElemCond{
				{Field: "slot", Op: Eq{Value: "TOPIC"}},
				{Field: "value", Op: Like{Pattern: "%math%"}},
			}},
		},
		{
			"value list",
			"lang", []any{"Go", "Rust"},
			NF{Conds: []ElemCond{
				{Field: "slot", Op: Eq{Value: "LANG"}},
				{Field: "value", Op: OpOr{Ops: []Op{In{Values: []any{"go", "rust"}}}}},
			}},
		},
		{
			"negated value",
			"lang", NotOf("GO"),
			NF{Conds: []ElemCond{
				{Field: "slot", Op: Eq{Value: "LANG"}},
				{Field: "value", Op: OpNot{Op: Eq{Value: "go"}}},
			}},
		},
		{
			"non-string operand untouched",
			"rank", 3,
			NF{Conds: []ElemCond{
				{Field: "slot", Op: Eq{Value: "RANK"}},
				{Field: "value", Op: Eq{Value: 3}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NFMatch(tt.slot, tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NFMatch(%q, %#v) = %#v, want %#v", tt.slot, tt.value, got, tt.want)
			}
		})
	}
}
