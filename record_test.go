package recdex

import (
	"reflect"
	"testing"
)

func TestTagCanonicalForm(t *testing.T) {
	if got := Tag("topic", "Math"); got != "[TOPIC:math]" {
		t.Errorf("Tag = %q, want [TOPIC:math]", got)
	}
}

func TestSplitTag(t *testing.T) {
	slot, value, ok := SplitTag("[LANG:c++]")
	if !ok || slot != "LANG" || value != "c++" {
		t.Errorf("SplitTag = %q, %q, %v", slot, value, ok)
	}
	for _, bad := range []string{"", "LANG:c++", "[LANGc++]", "[]"} {
		if _, _, ok := SplitTag(bad); ok {
			t.Errorf("SplitTag(%q) should fail", bad)
		}
	}
}

func TestAddTagDedupes(t *testing.T) {
	r := &Record{ID: 1}
	r.AddTag("topic", "math")
	r.AddTag("TOPIC", "math")
	r.AddTag("lang", "go")
	want := []string{"[LANG:go]", "[TOPIC:math]"}
	if !reflect.DeepEqual(r.Tags, want) {
		t.Errorf("Tags = %v, want %v", r.Tags, want)
	}
	if !r.HasTag("Topic", "MATH") {
		t.Error("HasTag should normalize case")
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := sampleRecord()
	c := r.Clone()
	c.Tags[0] = "changed"
	c.Metadata["user"] = "overwritten"
	if r.Tags[0] == "changed" {
		t.Error("clone shares tag slice")
	}
	if r.Metadata["user"] == "overwritten" {
		t.Error("clone shares metadata map")
	}
}

func TestKeyOf(t *testing.T) {
	rec := &Record{ID: 9}
	tests := []struct {
		name string
		key  any
		want int64
	}{
		{"int64", int64(5), 5},
		{"int", 5, 5},
		{"string form", "5", 5},
		{"record pointer", rec, 9},
		{"record value", *rec, 9},
		{"json float", float64(12), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyOf(tt.key)
			if err != nil {
				t.Fatalf("KeyOf: %v", err)
			}
			if got != tt.want {
				t.Errorf("KeyOf = %d, want %d", got, tt.want)
			}
		})
	}

	for _, bad := range []any{nil, "abc", 3.5, struct{}{}} {
		if _, err := KeyOf(bad); err == nil {
			t.Errorf("KeyOf(%#v) should fail", bad)
		}
	}
}

func TestKeysDedupePreservingOrder(t *testing.T) {
	got, err := Keys([]any{3, "1", int64(3), 2, 1})
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	want := []int64{3, 1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}
	empty, err := Keys(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Keys(nil) = %v, %v", empty, err)
	}
}
