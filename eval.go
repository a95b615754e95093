package recdex

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/kailas-cloud/recdex/filter"
	"github.com/kailas-cloud/recdex/filter/mqlgen"
)

// Eval applies a filter tree to a single record in process. It mirrors
// the compiled backends: an empty And matches, an empty Or or In does
// not, and an unknown field matches nothing except absence checks.
func Eval(rec *Record, n filter.Node) (bool, error) {
	switch t := n.(type) {
	case nil:
		return true, nil
	case filter.Field:
		val, ok := rec.Attr(t.Name)
		return evalOp(val, ok, t.Op)
	case filter.And:
		for _, sub := range t.Nodes {
			match, err := Eval(rec, sub)
			if err != nil || !match {
				return false, err
			}
		}
		return true, nil
	case filter.Or:
		for _, sub := range t.Nodes {
			match, err := Eval(rec, sub)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	case filter.Not:
		match, err := Eval(rec, t.Node)
		return !match, err
	}
	return false, fmt.Errorf("unsupported filter node %T", n)
}

func evalOp(val any, present bool, op filter.Op) (bool, error) {
	switch t := op.(type) {
	case filter.Exists:
		return present && !isNilValue(val), nil
	case filter.NotExists:
		return !present || isNilValue(val), nil
	case filter.OpNot:
		match, err := evalOp(val, present, t.Op)
		return !match, err
	case filter.OpAnd:
		for _, sub := range t.Ops {
			match, err := evalOp(val, present, sub)
			if err != nil || !match {
				return false, err
			}
		}
		return true, nil
	case filter.OpOr:
		for _, sub := range t.Ops {
			match, err := evalOp(val, present, sub)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	}
	if !present {
		return false, nil
	}
	switch t := op.(type) {
	case filter.Eq:
		return anyElement(val, func(v any) (bool, error) { return equalValues(v, t.Value), nil })
	case filter.Gt:
		return anyElement(val, func(v any) (bool, error) { return compareIs(v, t.Value, func(c int) bool { return c > 0 }) })
	case filter.Gte:
		return anyElement(val, func(v any) (bool, error) { return compareIs(v, t.Value, func(c int) bool { return c >= 0 }) })
	case filter.Lt:
		return anyElement(val, func(v any) (bool, error) { return compareIs(v, t.Value, func(c int) bool { return c < 0 }) })
	case filter.Lte:
		return anyElement(val, func(v any) (bool, error) { return compareIs(v, t.Value, func(c int) bool { return c <= 0 }) })
	case filter.Between:
		return anyElement(val, func(v any) (bool, error) { return evalBetween(v, t) })
	case filter.In:
		return anyElement(val, func(v any) (bool, error) {
			for _, want := range t.Values {
				if equalValues(v, want) {
					return true, nil
				}
			}
			return false, nil
		})
	case filter.Like:
		return evalPattern(val, t.Pattern, false)
	case filter.Ilike:
		return evalPattern(val, t.Pattern, true)
	case filter.JSON:
		return evalJSON(val, t)
	case filter.NF:
		return evalNF(val, t)
	}
	return false, fmt.Errorf("unsupported filter operator %T", op)
}

// anyElement applies pred to the value, or to each element when the
// value is a list (document-store array semantics).
func anyElement(val any, pred func(any) (bool, error)) (bool, error) {
	switch list := val.(type) {
	case []string:
		for _, v := range list {
			if ok, err := pred(v); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case []any:
		for _, v := range list {
			if ok, err := pred(v); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return pred(val)
}

func evalBetween(val any, b filter.Between) (bool, error) {
	if !filter.Unbounded(b.Lo) {
		ok, err := compareIs(val, b.Lo, func(c int) bool { return c >= 0 })
		if err != nil || !ok {
			return false, err
		}
	}
	if !filter.Unbounded(b.Hi) {
		ok, err := compareIs(val, b.Hi, func(c int) bool { return c <= 0 })
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalPattern(val any, pattern string, insensitive bool) (bool, error) {
	expr := mqlgen.Regex(pattern)
	if insensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	return anyElement(val, func(v any) (bool, error) {
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		return re.MatchString(s), nil
	})
}

func evalJSON(val any, j filter.JSON) (bool, error) {
	obj, ok := val.(map[string]any)
	if !ok {
		return false, nil
	}
	for _, p := range j.Paths {
		nested, present := lookupPath(obj, p.Path)
		match, err := evalOp(nested, present, p.Op)
		if err != nil || !match {
			return false, err
		}
	}
	return true, nil
}

func lookupPath(obj map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = obj
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

// evalNF checks normalized-form conditions against canonical tag
// strings: some single tag must satisfy every condition, with its slot
// and value exposed as element fields.
func evalNF(val any, nf filter.NF) (bool, error) {
	tags, ok := val.([]string)
	if !ok {
		return false, nil
	}
	for _, tag := range tags {
		slot, value, ok := SplitTag(tag)
		if !ok {
			continue
		}
		elem := map[string]any{"slot": slot, "value": value}
		all := true
		for _, c := range nf.Conds {
			fv, present := elem[c.Field]
			match, err := evalOp(fv, present, c.Op)
			if err != nil {
				return false, err
			}
			if !match {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			return at.Equal(bt)
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareIs(a, b any, want func(int) bool) (bool, error) {
	c, err := compareValues(a, b)
	if err != nil {
		return false, nil //nolint:nilerr // incomparable values simply do not match
	}
	return want(c), nil
}

func compareValues(a, b any) (int, error) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}
	if at, aok := toTime(a); aok {
		bt, bok := toTime(b)
		if !bok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		return at.Compare(bt), nil
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
