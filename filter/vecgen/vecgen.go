// Package vecgen compiles filter trees into the structural metadata
// filters understood by vector store clients.
package vecgen

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/recdex/filter"
)

// Cond combines child filters.
type Cond string

const (
	CondAnd Cond = "and"
	CondOr  Cond = "or"
	CondNot Cond = "not"
)

// Operator is a leaf comparison.
type Operator string

const (
	OpEq         Operator = "=="
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpIn         Operator = "in"
	OpTextMatch  Operator = "text_match"
	OpTextMatchI Operator = "text_match_insensitive"
	OpExists     Operator = "exists"
)

// Filter is either a leaf (Key/Op/Value set) or a group (Cond/Filters
// set). A nil *Filter matches everything; an or-group with no children
// matches nothing.
type Filter struct {
	Cond    Cond      `json:"cond,omitempty"`
	Filters []*Filter `json:"filters,omitempty"`

	Key   string   `json:"key,omitempty"`
	Op    Operator `json:"op,omitempty"`
	Value any      `json:"value,omitempty"`
}

// Leaf reports whether the filter is a single comparison.
func (f *Filter) Leaf() bool {
	return f != nil && f.Cond == ""
}

// Never reports whether the filter structurally matches nothing.
func (f *Filter) Never() bool {
	if f == nil || f.Leaf() {
		return false
	}
	switch f.Cond {
	case CondOr:
		for _, sub := range f.Filters {
			if !sub.Never() {
				return false
			}
		}
		return true
	case CondAnd:
		for _, sub := range f.Filters {
			if sub.Never() {
				return true
			}
		}
	}
	return false
}

// never is the canonical match-nothing filter.
func never() *Filter {
	return &Filter{Cond: CondOr}
}

// Compile translates a filter tree. A nil result matches everything.
func Compile(n filter.Node) (*Filter, error) {
	switch t := n.(type) {
	case nil:
		return nil, nil
	case filter.Field:
		return compileOp(t.Name, t.Op)
	case filter.And:
		return compileAnd(t.Nodes)
	case filter.Or:
		return compileOr(t.Nodes)
	case filter.Not:
		sub, err := Compile(t.Node)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return never(), nil
		}
		return &Filter{Cond: CondNot, Filters: []*Filter{sub}}, nil
	}
	return nil, fmt.Errorf("unsupported filter node %T", n)
}

func compileAnd(nodes []filter.Node) (*Filter, error) {
	subs := make([]*Filter, 0, len(nodes))
	for _, n := range nodes {
		sub, err := Compile(n)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			continue // match-all contributes nothing to a conjunction
		}
		subs = append(subs, sub)
	}
	return group(CondAnd, subs, nil), nil
}

func compileOr(nodes []filter.Node) (*Filter, error) {
	if len(nodes) == 0 {
		return never(), nil
	}
	subs := make([]*Filter, 0, len(nodes))
	for _, n := range nodes {
		sub, err := Compile(n)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, nil // match-all absorbs a disjunction
		}
		subs = append(subs, sub)
	}
	return group(CondOr, subs, never()), nil
}

func group(cond Cond, subs []*Filter, empty *Filter) *Filter {
	switch len(subs) {
	case 0:
		return empty
	case 1:
		return subs[0]
	}
	return &Filter{Cond: cond, Filters: subs}
}

func compileOp(key string, op filter.Op) (*Filter, error) {
	switch t := op.(type) {
	case filter.Eq:
		return &Filter{Key: key, Op: OpEq, Value: t.Value}, nil
	case filter.Gt:
		return &Filter{Key: key, Op: OpGt, Value: t.Value}, nil
	case filter.Gte:
		return &Filter{Key: key, Op: OpGte, Value: t.Value}, nil
	case filter.Lt:
		return &Filter{Key: key, Op: OpLt, Value: t.Value}, nil
	case filter.Lte:
		return &Filter{Key: key, Op: OpLte, Value: t.Value}, nil
	case filter.Between:
		var subs []*Filter
		if !filter.Unbounded(t.Lo) {
			subs = append(subs, &Filter{Key: key, Op: OpGte, Value: t.Lo})
		}
		if !filter.Unbounded(t.Hi) {
			subs = append(subs, &Filter{Key: key, Op: OpLte, Value: t.Hi})
		}
		return group(CondAnd, subs, nil), nil
	case filter.In:
		if len(t.Values) == 0 {
			return never(), nil
		}
		return &Filter{Key: key, Op: OpIn, Value: t.Values}, nil
	case filter.Like:
		return &Filter{Key: key, Op: OpTextMatch, Value: strings.Trim(t.Pattern, "%")}, nil
	case filter.Ilike:
		return &Filter{Key: key, Op: OpTextMatchI, Value: strings.Trim(t.Pattern, "%")}, nil
	case filter.Exists:
		return &Filter{Key: key, Op: OpExists, Value: true}, nil
	case filter.NotExists:
		return &Filter{Key: key, Op: OpExists, Value: false}, nil
	case filter.OpNot:
		sub, err := compileOp(key, t.Op)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return never(), nil
		}
		return &Filter{Cond: CondNot, Filters: []*Filter{sub}}, nil
	case filter.OpAnd:
		subs := make([]*Filter, 0, len(t.Ops))
		for _, sub := range t.Ops {
			f, err := compileOp(key, sub)
			if err != nil {
				return nil, err
			}
			if f == nil {
				continue
			}
			subs = append(subs, f)
		}
		return group(CondAnd, subs, nil), nil
	case filter.OpOr:
		if len(t.Ops) == 0 {
			return never(), nil
		}
		subs := make([]*Filter, 0, len(t.Ops))
		for _, sub := range t.Ops {
			f, err := compileOp(key, sub)
			if err != nil {
				return nil, err
			}
			if f == nil {
				return nil, nil
			}
			subs = append(subs, f)
		}
		return group(CondOr, subs, never()), nil
	case filter.JSON:
		subs := make([]*Filter, 0, len(t.Paths))
		for _, p := range t.Paths {
			f, err := compileOp(key+"."+p.Path, p.Op)
			if err != nil {
				return nil, err
			}
			if f == nil {
				continue
			}
			subs = append(subs, f)
		}
		return group(CondAnd, subs, nil), nil
	case filter.NF:
		return nil, fmt.Errorf("normalized-form conditions cannot target vector metadata")
	}
	return nil, fmt.Errorf("unsupported filter operator %T", op)
}
