// Package filter defines the backend-agnostic filter tree shared by all
// query compilers and the local record evaluator.
//
// A filter is a tree of Node values. Leaves bind a field name to an Op;
// And/Or/Not combine nodes. Ops themselves may nest (OpAnd, OpOr, OpNot),
// always scoped to the enclosing field.
//
// Two identities are load-bearing and honored by every compiler:
// an And with no children matches everything, an Or (or In) with no
// children matches nothing.
package filter

import "strings"

// Node is a filter tree node. Implementations are the closed set
// Field, And, Or and Not.
type Node interface {
	isNode()
}

// Field binds an operator to a named record field.
type Field struct {
	Name string
	Op   Op
}

// And matches when every child matches. No children matches everything.
type And struct {
	Nodes []Node
}

// Or matches when any child matches. No children matches nothing.
type Or struct {
	Nodes []Node
}

// Not inverts its child.
type Not struct {
	Node Node
}

func (Field) isNode() {}
func (And) isNode()   {}
func (Or) isNode()    {}
func (Not) isNode()   {}

// Op is a field-scoped operator. Implementations are the closed set below.
type Op interface {
	isOp()
}

// Eq matches values equal to Value.
type Eq struct {
	Value any
}

// Gt matches values strictly greater than Value.
type Gt struct {
	Value any
}

// Gte matches values greater than or equal to Value.
type Gte struct {
	Value any
}

// Lt matches values strictly less than Value.
type Lt struct {
	Value any
}

// Lte matches values less than or equal to Value.
type Lte struct {
	Value any
}

// Between matches values in the inclusive range [Lo, Hi].
// A nil bound (or an infinite float) leaves that side unbounded.
type Between struct {
	Lo any
	Hi any
}

// Like matches SQL-style patterns: % is any run of characters, _ is a
// single character, everything else is literal.
type Like struct {
	Pattern string
}

// Ilike is Like without case sensitivity.
type Ilike struct {
	Pattern string
}

// In matches any of Values. No values matches nothing.
type In struct {
	Values []any
}

// OpAnd matches when every child op matches. No children matches everything.
type OpAnd struct {
	Ops []Op
}

// OpOr matches when any child op matches. No children matches nothing.
type OpOr struct {
	Ops []Op
}

// OpNot inverts its child op.
type OpNot struct {
	Op Op
}

// Exists matches when the field is present with a non-nil value.
type Exists struct{}

// NotExists matches when the field is absent or nil.
type NotExists struct{}

// PathOp binds an operator to a dotted path inside a structured field.
type PathOp struct {
	Path string
	Op   Op
}

// JSON applies operators to nested paths of a structured field.
// Paths keeps declaration order; multiple paths are implicitly ANDed.
type JSON struct {
	Paths []PathOp
}

// ElemCond constrains one named field of a normalized element.
type ElemCond struct {
	Field string
	Op    Op
}

// NF matches normalized-form elements (tags, auths). All conditions must
// hold on a single element.
type NF struct {
	Conds []ElemCond
}

func (Eq) isOp()        {}
func (Gt) isOp()        {}
func (Gte) isOp()       {}
func (Lt) isOp()        {}
func (Lte) isOp()       {}
func (Between) isOp()   {}
func (Like) isOp()      {}
func (Ilike) isOp()     {}
func (In) isOp()        {}
func (OpAnd) isOp()     {}
func (OpOr) isOp()      {}
func (OpNot) isOp()     {}
func (Exists) isOp()    {}
func (NotExists) isOp() {}
func (JSON) isOp()      {}
func (NF) isOp()        {}

// InOf builds an In from a value list.
func InOf(values ...any) In {
	return In{Values: values}
}

// AndOf builds an And from child nodes.
func AndOf(nodes ...Node) And {
	return And{Nodes: nodes}
}

// OrOf builds an Or from child nodes.
func OrOf(nodes ...Node) Or {
	return Or{Nodes: nodes}
}

// JSONPath builds a single-path JSON op.
func JSONPath(path string, value any) JSON {
	return JSON{Paths: []PathOp{{Path: path, Op: ToOp(value)}}}
}

// NFMatch builds the common slot/value normalized-form condition,
// canonicalized the way Tag stores elements: slot upper-cased, string
// value operands lower-cased. value may be a plain value or an Op.
func NFMatch(slot string, value any) NF {
	return NF{Conds: []ElemCond{
		{Field: "slot", Op: Eq{Value: strings.ToUpper(slot)}},
		{Field: "value", Op: lowerOp(ToOp(value))},
	}}
}

// lowerOp folds string operands to lower case, recursing through
// composite ops. Non-string operands pass through unchanged.
func lowerOp(op Op) Op {
	switch t := op.(type) {
	case Eq:
		if s, ok := t.Value.(string); ok {
			return Eq{Value: strings.ToLower(s)}
		}
	case In:
		vals := make([]any, len(t.Values))
		for i, v := range t.Values {
			if s, ok := v.(string); ok {
				vals[i] = strings.ToLower(s)
			} else {
				vals[i] = v
			}
		}
		return In{Values: vals}
	case Like:
		return Like{Pattern: strings.ToLower(t.Pattern)}
	case Ilike:
		return Ilike{Pattern: strings.ToLower(t.Pattern)}
	case OpAnd:
		ops := make([]Op, len(t.Ops))
		for i, sub := range t.Ops {
			ops[i] = lowerOp(sub)
		}
		return OpAnd{Ops: ops}
	case OpOr:
		ops := make([]Op, len(t.Ops))
		for i, sub := range t.Ops {
			ops[i] = lowerOp(sub)
		}
		return OpOr{Ops: ops}
	case OpNot:
		return OpNot{Op: lowerOp(t.Op)}
	}
	return op
}
