// Package memdoc is an in-process document database evaluating the
// mqlgen query dialect. It backs embedded deployments and keeps the
// document store testable without a server.
package memdoc

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/kailas-cloud/recdex/filter/mqlgen"
	"github.com/kailas-cloud/recdex/store/docstore"
)

// Client holds documents keyed by their integer id.
type Client struct {
	docs map[int64]mqlgen.M
}

var _ docstore.Client = (*Client)(nil)

// New creates an empty client.
func New() *Client {
	return &Client{docs: make(map[int64]mqlgen.M)}
}

// Find implements docstore.Client. Results are ordered by id; limit 0
// means unlimited.
func (c *Client) Find(_ context.Context, query mqlgen.M, limit, offset int) ([]mqlgen.M, error) {
	if mqlgen.IsNeverMatch(query) {
		return nil, nil
	}
	ids := make([]int64, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []mqlgen.M
	skipped := 0
	for _, id := range ids {
		doc := c.docs[id]
		match, err := matchQuery(doc, query)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Upsert implements docstore.Client.
func (c *Client) Upsert(_ context.Context, docs []mqlgen.M) error {
	for _, doc := range docs {
		id, err := docID(doc)
		if err != nil {
			return err
		}
		c.docs[id] = doc
	}
	return nil
}

// Insert implements docstore.Client.
func (c *Client) Insert(_ context.Context, docs []mqlgen.M) error {
	for _, doc := range docs {
		id, err := docID(doc)
		if err != nil {
			return err
		}
		if _, exists := c.docs[id]; exists {
			continue
		}
		c.docs[id] = doc
	}
	return nil
}

// Remove implements docstore.Client.
func (c *Client) Remove(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(c.docs, id)
	}
	return nil
}

// Clear implements docstore.Client.
func (c *Client) Clear(context.Context) error {
	c.docs = make(map[int64]mqlgen.M)
	return nil
}

// Count implements docstore.Client.
func (c *Client) Count(context.Context) (int, error) {
	return len(c.docs), nil
}

func docID(doc mqlgen.M) (int64, error) {
	switch id := doc["id"].(type) {
	case int64:
		return id, nil
	case int:
		return int64(id), nil
	case float64:
		return int64(id), nil
	}
	return 0, fmt.Errorf("document has no integer id: %v", doc["id"])
}

// matchQuery applies a query object; all entries are implicitly ANDed.
func matchQuery(doc, query mqlgen.M) (bool, error) {
	for key, cond := range query {
		var (
			match bool
			err   error
		)
		switch key {
		case "$and":
			match, err = matchAll(doc, cond)
		case "$or":
			match, err = matchAny(doc, cond)
		case "$nor":
			match, err = matchAny(doc, cond)
			match = !match
		case "$literal":
			b, _ := cond.(bool)
			match = b
		default:
			val, present := lookup(doc, key)
			match, err = matchCond(val, present, cond)
		}
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

func subqueries(cond any) ([]mqlgen.M, error) {
	switch list := cond.(type) {
	case []mqlgen.M:
		return list, nil
	case []any:
		out := make([]mqlgen.M, 0, len(list))
		for _, item := range list {
			q, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("junction branch must be an object, got %T", item)
			}
			out = append(out, q)
		}
		return out, nil
	}
	return nil, fmt.Errorf("junction must hold a list, got %T", cond)
}

func matchAll(doc mqlgen.M, cond any) (bool, error) {
	subs, err := subqueries(cond)
	if err != nil {
		return false, err
	}
	for _, q := range subs {
		ok, err := matchQuery(doc, q)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAny(doc mqlgen.M, cond any) (bool, error) {
	subs, err := subqueries(cond)
	if err != nil {
		return false, err
	}
	for _, q := range subs {
		ok, err := matchQuery(doc, q)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// lookup resolves a dotted path against nested maps.
func lookup(doc mqlgen.M, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(doc)
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// matchCond applies a field condition: an operator object when every
// key starts with $, plain equality otherwise.
func matchCond(val any, present bool, cond any) (bool, error) {
	ops, ok := operatorObject(cond)
	if !ok {
		if !present {
			return false, nil
		}
		return equalOrElement(val, cond), nil
	}
	opts, _ := ops["$options"].(string)
	for op, arg := range ops {
		var (
			match bool
			err   error
		)
		if op == "$regex" {
			match, err = matchRegex(val, arg, strings.Contains(opts, "i"))
		} else {
			match, err = matchOp(val, present, op, arg)
		}
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

func operatorObject(cond any) (mqlgen.M, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOp(val any, present bool, op string, arg any) (bool, error) {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return present == want, nil
	case "$options":
		return true, nil // consumed by $regex
	}
	if !present {
		return false, nil
	}
	switch op {
	case "$eq":
		return equalOrElement(val, arg), nil
	case "$ne":
		return !equalOrElement(val, arg), nil
	case "$gt":
		return compareAny(val, arg, func(c int) bool { return c > 0 }), nil
	case "$gte":
		return compareAny(val, arg, func(c int) bool { return c >= 0 }), nil
	case "$lt":
		return compareAny(val, arg, func(c int) bool { return c < 0 }), nil
	case "$lte":
		return compareAny(val, arg, func(c int) bool { return c <= 0 }), nil
	case "$in":
		list, ok := arg.([]any)
		if !ok {
			return false, fmt.Errorf("$in requires a list, got %T", arg)
		}
		for _, want := range list {
			if equalOrElement(val, want) {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		return matchRegex(val, arg, false)
	case "$not":
		sub, ok := arg.(map[string]any)
		if !ok {
			return false, fmt.Errorf("$not requires an operator object, got %T", arg)
		}
		match, err := matchCond(val, present, sub)
		return !match, err
	case "$elemMatch":
		sub, ok := arg.(map[string]any)
		if !ok {
			return false, fmt.Errorf("$elemMatch requires an object, got %T", arg)
		}
		elems, ok := val.([]any)
		if !ok {
			return false, nil
		}
		for _, elem := range elems {
			m, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			match, err := matchQuery(m, sub)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

// matchRegex handles $regex with its sibling $options flag folded in by
// matchCond evaluating both keys over the same value.
func matchRegex(val any, arg any, insensitive bool) (bool, error) {
	pattern, ok := arg.(string)
	if !ok {
		return false, fmt.Errorf("$regex requires a string, got %T", arg)
	}
	if insensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("bad $regex %q: %w", pattern, err)
	}
	switch s := val.(type) {
	case string:
		return re.MatchString(s), nil
	case []any:
		for _, elem := range s {
			if str, ok := elem.(string); ok && re.MatchString(str) {
				return true, nil
			}
		}
	}
	return false, nil
}

func equalOrElement(val, want any) bool {
	if list, ok := val.([]any); ok {
		for _, elem := range list {
			if equalValue(elem, want) {
				return true
			}
		}
	}
	return equalValue(val, want)
}

// equalValue compares via DeepEqual rather than ==; operands may carry
// uncomparable types (maps, slices) that == would panic on.
func equalValue(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func compareAny(a, b any, want func(int) bool) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return false
		}
		switch {
		case af < bf:
			return want(-1)
		case af > bf:
			return want(1)
		}
		return want(0)
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return want(strings.Compare(as, bs))
	}
	return false
}

func toFloat(v any) (float64, bool) {
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
