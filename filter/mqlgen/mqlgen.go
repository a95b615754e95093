// Package mqlgen compiles filter trees into document-store queries in
// the MongoDB operator dialect.
package mqlgen

import (
	"fmt"
	"regexp"

	"github.com/kailas-cloud/recdex/filter"
)

// M is a document query object.
type M = map[string]any

// AlwaysFalse returns the never-match sentinel. Document backends have
// no literal false query, so consumers (memdoc, the doc engine) check
// for it with IsNeverMatch before dispatching.
func AlwaysFalse() M {
	return M{"$literal": false}
}

// IsNeverMatch reports whether a query is the never-match sentinel.
func IsNeverMatch(q M) bool {
	v, ok := q["$literal"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && !b
}

// Compile translates a filter tree into a document query. A nil node
// compiles to the empty query (match everything).
func Compile(n filter.Node) (M, error) {
	switch t := n.(type) {
	case nil:
		return M{}, nil
	case filter.Field:
		return compileField(t.Name, t.Op)
	case filter.And:
		return compileJunction("$and", t.Nodes)
	case filter.Or:
		if len(t.Nodes) == 0 {
			return AlwaysFalse(), nil
		}
		return compileJunction("$or", t.Nodes)
	case filter.Not:
		sub, err := Compile(t.Node)
		if err != nil {
			return nil, err
		}
		return M{"$nor": []M{sub}}, nil
	}
	return nil, fmt.Errorf("unsupported filter node %T", n)
}

func compileJunction(op string, nodes []filter.Node) (M, error) {
	if len(nodes) == 0 {
		return M{}, nil
	}
	subs := make([]M, 0, len(nodes))
	for _, n := range nodes {
		sub, err := Compile(n)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if len(subs) == 1 {
		return subs[0], nil
	}
	return M{op: subs}, nil
}

// compileField translates one field-scoped operator into query form.
// Field-level composites lift back to query-level $and/$or so that
// vacuous identities keep their meaning.
func compileField(name string, op filter.Op) (M, error) {
	switch t := op.(type) {
	case filter.In:
		if len(t.Values) == 0 {
			return AlwaysFalse(), nil
		}
		return M{name: M{"$in": t.Values}}, nil
	case filter.OpAnd:
		if len(t.Ops) == 0 {
			return M{}, nil
		}
		return liftJunction("$and", name, t.Ops)
	case filter.OpOr:
		if len(t.Ops) == 0 {
			return AlwaysFalse(), nil
		}
		return liftJunction("$or", name, t.Ops)
	case filter.Between:
		cond, err := compileValue(t)
		if err != nil {
			return nil, err
		}
		if len(cond.(M)) == 0 {
			return M{}, nil
		}
		return M{name: cond}, nil
	case filter.JSON:
		return compileJSON(name, t)
	case filter.NF:
		elem := M{}
		for _, c := range t.Conds {
			v, err := compileValue(c.Op)
			if err != nil {
				return nil, err
			}
			elem[c.Field] = v
		}
		return M{name: M{"$elemMatch": elem}}, nil
	default:
		v, err := compileValue(op)
		if err != nil {
			return nil, err
		}
		return M{name: v}, nil
	}
}

func liftJunction(junction, name string, ops []filter.Op) (M, error) {
	subs := make([]M, 0, len(ops))
	for _, op := range ops {
		sub, err := compileField(name, op)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if len(subs) == 1 {
		return subs[0], nil
	}
	return M{junction: subs}, nil
}

// compileValue translates a scalar-position operator. Exact matches
// stay bare values; everything else becomes an operator object.
func compileValue(op filter.Op) (any, error) {
	switch t := op.(type) {
	case filter.Eq:
		return t.Value, nil
	case filter.Gt:
		return M{"$gt": t.Value}, nil
	case filter.Gte:
		return M{"$gte": t.Value}, nil
	case filter.Lt:
		return M{"$lt": t.Value}, nil
	case filter.Lte:
		return M{"$lte": t.Value}, nil
	case filter.Between:
		cond := M{}
		if !filter.Unbounded(t.Lo) {
			cond["$gte"] = t.Lo
		}
		if !filter.Unbounded(t.Hi) {
			cond["$lte"] = t.Hi
		}
		return cond, nil
	case filter.In:
		return M{"$in": t.Values}, nil
	case filter.Like:
		return M{"$regex": Regex(t.Pattern)}, nil
	case filter.Ilike:
		return M{"$regex": Regex(t.Pattern), "$options": "i"}, nil
	case filter.Exists:
		return M{"$exists": true}, nil
	case filter.NotExists:
		return M{"$exists": false}, nil
	case filter.OpNot:
		switch inner := t.Op.(type) {
		case filter.Eq:
			return M{"$ne": inner.Value}, nil
		case filter.Exists:
			return M{"$exists": false}, nil
		case filter.NotExists:
			return M{"$exists": true}, nil
		default:
			sub, err := compileValue(t.Op)
			if err != nil {
				return nil, err
			}
			cond, ok := sub.(M)
			if !ok {
				return M{"$ne": sub}, nil
			}
			return M{"$not": cond}, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator %T in value position", op)
}

func compileJSON(name string, j filter.JSON) (M, error) {
	if len(j.Paths) == 0 {
		return M{}, nil
	}
	conds := make([]M, 0, len(j.Paths))
	for _, p := range j.Paths {
		v, err := compileValue(p.Op)
		if err != nil {
			return nil, err
		}
		conds = append(conds, M{name + "." + p.Path: v})
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return M{"$and": conds}, nil
}

// Regex translates a SQL LIKE pattern into an anchored-free regular
// expression: % becomes .*, _ becomes ., all other characters are
// escaped literally.
func Regex(pattern string) string {
	out := make([]byte, 0, len(pattern)*2)
	for _, r := range pattern {
		switch r {
		case '%':
			out = append(out, ".*"...)
		case '_':
			out = append(out, '.')
		default:
			out = append(out, regexp.QuoteMeta(string(r))...)
		}
	}
	return string(out)
}
