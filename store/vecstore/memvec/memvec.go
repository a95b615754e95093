// Package memvec is an in-process vector database doing brute-force
// cosine search. It backs embedded deployments and keeps the vector
// store testable without a server.
package memvec

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kailas-cloud/recdex/filter/vecgen"
	"github.com/kailas-cloud/recdex/store/vecstore"
)

// Client holds documents keyed by id. Safe for concurrent use.
type Client struct {
	mu        sync.RWMutex
	docs      map[int64]vecstore.Doc
	tagFields map[string]bool
}

var _ vecstore.Client = (*Client)(nil)

// New creates an empty client. tagFields name the comma-separated
// multi-value fields; "tags" when none are given.
func New(tagFields ...string) *Client {
	if len(tagFields) == 0 {
		tagFields = []string{"tags"}
	}
	set := make(map[string]bool, len(tagFields))
	for _, f := range tagFields {
		set[f] = true
	}
	return &Client{docs: make(map[int64]vecstore.Doc), tagFields: set}
}

// Put implements vecstore.Client. Fields merge over any existing
// document; a nil vector keeps the stored one.
func (c *Client) Put(_ context.Context, docs []vecstore.Doc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, doc := range docs {
		prev, ok := c.docs[doc.ID]
		next := vecstore.Doc{ID: doc.ID, Fields: make(map[string]string)}
		if ok {
			for k, v := range prev.Fields {
				next.Fields[k] = v
			}
			next.Vector = prev.Vector
		}
		for k, v := range doc.Fields {
			next.Fields[k] = v
		}
		if doc.Vector != nil {
			next.Vector = append([]float32(nil), doc.Vector...)
		}
		c.docs[doc.ID] = next
	}
	return nil
}

// Get implements vecstore.Client. Absent ids return (nil, nil).
func (c *Client) Get(_ context.Context, id int64) (*vecstore.Doc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	out := vecstore.Doc{ID: doc.ID, Fields: make(map[string]string, len(doc.Fields))}
	for k, v := range doc.Fields {
		out.Fields[k] = v
	}
	out.Vector = append([]float32(nil), doc.Vector...)
	return &out, nil
}

// Remove implements vecstore.Client.
func (c *Client) Remove(_ context.Context, ids []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.docs, id)
	}
	return nil
}

// Clear implements vecstore.Client.
func (c *Client) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[int64]vecstore.Doc)
	return nil
}

// Len implements vecstore.Client.
func (c *Client) Len(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

// IDs implements vecstore.Client. Ids come back sorted.
func (c *Client) IDs(context.Context) ([]int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int64, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Search implements vecstore.Client with an exact scan: cosine
// similarity over every document passing the filter, clamped to [0, 1].
func (c *Client) Search(_ context.Context, vector []float32, k int, f *vecgen.Filter) ([]vecstore.Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if f.Never() {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := make([]vecstore.Hit, 0, len(c.docs))
	for _, doc := range c.docs {
		if len(doc.Vector) != len(vector) {
			continue
		}
		ok, err := c.match(f, doc.Fields)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		fields := make(map[string]string, len(doc.Fields))
		for key, v := range doc.Fields {
			fields[key] = v
		}
		hits = append(hits, vecstore.Hit{
			ID:     doc.ID,
			Score:  math.Max(0, cosine(vector, doc.Vector)),
			Fields: fields,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close implements vecstore.Client.
func (c *Client) Close() error { return nil }

func (c *Client) match(f *vecgen.Filter, fields map[string]string) (bool, error) {
	if f == nil {
		return true, nil
	}
	if f.Leaf() {
		return c.matchLeaf(f, fields)
	}
	switch f.Cond {
	case vecgen.CondAnd:
		for _, sub := range f.Filters {
			ok, err := c.match(sub, fields)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case vecgen.CondOr:
		for _, sub := range f.Filters {
			ok, err := c.match(sub, fields)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case vecgen.CondNot:
		if len(f.Filters) != 1 {
			return false, fmt.Errorf("not group must hold one filter, got %d", len(f.Filters))
		}
		ok, err := c.match(f.Filters[0], fields)
		return !ok, err
	}
	return false, fmt.Errorf("unknown filter cond %q", f.Cond)
}

func (c *Client) matchLeaf(f *vecgen.Filter, fields map[string]string) (bool, error) {
	val, present := fields[f.Key]
	if f.Op == vecgen.OpExists {
		want, _ := f.Value.(bool)
		return present == want, nil
	}
	if !present {
		return false, nil
	}
	switch f.Op {
	case vecgen.OpEq:
		return c.equal(f.Key, val, f.Value), nil
	case vecgen.OpGt, vecgen.OpGte, vecgen.OpLt, vecgen.OpLte:
		have, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return false, nil
		}
		want, ok := numeric(f.Value)
		if !ok {
			return false, fmt.Errorf("field %s: %q is not numeric", f.Key, fmt.Sprint(f.Value))
		}
		switch f.Op {
		case vecgen.OpGt:
			return have > want, nil
		case vecgen.OpGte:
			return have >= want, nil
		case vecgen.OpLt:
			return have < want, nil
		default:
			return have <= want, nil
		}
	case vecgen.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return false, fmt.Errorf("field %s: in requires a value list", f.Key)
		}
		for _, want := range values {
			if c.equal(f.Key, val, want) {
				return true, nil
			}
		}
		return false, nil
	case vecgen.OpTextMatch:
		want, _ := f.Value.(string)
		return strings.Contains(val, want), nil
	case vecgen.OpTextMatchI:
		want, _ := f.Value.(string)
		return strings.Contains(strings.ToLower(val), strings.ToLower(want)), nil
	}
	return false, fmt.Errorf("unknown filter op %q", f.Op)
}

// equal compares with tag semantics for multi-value fields: any
// comma-separated element may match.
func (c *Client) equal(key, stored string, want any) bool {
	if wf, ok := numeric(want); ok {
		if sf, err := strconv.ParseFloat(stored, 64); err == nil {
			return sf == wf
		}
	}
	ws := fmt.Sprint(want)
	if stored == ws {
		return true
	}
	if c.tagFields[key] {
		for _, elem := range strings.Split(stored, ",") {
			if elem == ws {
				return true
			}
		}
	}
	return false
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
