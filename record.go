// Package recdex holds the record model, the store contract shared by
// every backend, and the local filter evaluator.
package recdex

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is a stored knowledge record. IDs are caller-assigned, stable
// and immutable; everything else may change across upserts.
type Record struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name,omitempty"`
	Type      string         `json:"type,omitempty"`
	Content   string         `json:"content,omitempty"`
	Priority  int            `json:"priority,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
}

// Tag renders the canonical tag form "[SLOT:value]". Slots are
// uppercased, values lowercased.
func Tag(slot, value string) string {
	return "[" + strings.ToUpper(slot) + ":" + strings.ToLower(value) + "]"
}

// SplitTag parses a canonical tag back into slot and value.
func SplitTag(tag string) (slot, value string, ok bool) {
	if len(tag) < 2 || tag[0] != '[' || tag[len(tag)-1] != ']' {
		return "", "", false
	}
	body := tag[1 : len(tag)-1]
	i := strings.IndexByte(body, ':')
	if i < 0 {
		return "", "", false
	}
	return body[:i], body[i+1:], true
}

// HasTag reports canonical tag membership.
func (r *Record) HasTag(slot, value string) bool {
	want := Tag(slot, value)
	for _, t := range r.Tags {
		if t == want {
			return true
		}
	}
	return false
}

// AddTag appends the canonical tag if absent, keeping Tags sorted.
func (r *Record) AddTag(slot, value string) {
	tag := Tag(slot, value)
	for _, t := range r.Tags {
		if t == tag {
			return
		}
	}
	r.Tags = append(r.Tags, tag)
	sort.Strings(r.Tags)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Attr resolves a filter field name against the record. The second
// return is false for unknown names.
func (r *Record) Attr(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "name":
		return r.Name, true
	case "type":
		return r.Type, true
	case "content":
		return r.Content, true
	case "priority":
		return r.Priority, true
	case "tags":
		return r.Tags, true
	case "metadata":
		return r.Metadata, true
	case "timestamp":
		return r.Timestamp, true
	}
	return nil, false
}

func (r *Record) String() string {
	return fmt.Sprintf("Record(%d, %q)", r.ID, r.Name)
}
