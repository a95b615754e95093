package filter

import "reflect"

// FieldExpr is one field/value pair for Expr.
type FieldExpr struct {
	Name  string
	Value any
}

// F pairs a field name with a value for Expr.
func F(name string, value any) FieldExpr {
	return FieldExpr{Name: name, Value: value}
}

// Expr builds a filter from ordered field/value pairs. Values follow the
// sugar rules of ToOp. No pairs yields nil (match everything); one pair
// yields a bare Field; more are combined with And in call order.
func Expr(fields ...FieldExpr) Node {
	if len(fields) == 0 {
		return nil
	}
	nodes := make([]Node, len(fields))
	for i, f := range fields {
		nodes[i] = Field{Name: f.Name, Op: ToOp(f.Value)}
	}
	if len(nodes) == 1 {
		return nodes[0]
	}
	return And{Nodes: nodes}
}

// ToOp converts a builder value into an Op:
//
//   - nil checks field existence
//   - an Op passes through unchanged
//   - a slice becomes an OpOr: operator elements kept in order, plain
//     values collected into a trailing In
//   - a two-element array is a Between shorthand
//   - anything else is an exact match
func ToOp(value any) Op {
	if value == nil {
		return Exists{}
	}
	if op, ok := value.(Op); ok {
		return op
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice:
		return listOp(rv)
	case reflect.Array:
		if rv.Len() == 2 {
			return Between{Lo: ifaceOrNil(rv.Index(0)), Hi: ifaceOrNil(rv.Index(1))}
		}
	}
	return Eq{Value: value}
}

// NotOf negates a builder value. NotOf(nil) checks field absence.
func NotOf(value any) Op {
	if value == nil {
		return NotExists{}
	}
	return OpNot{Op: ToOp(value)}
}

func listOp(rv reflect.Value) Op {
	var ops []Op
	var bare []any
	for i := 0; i < rv.Len(); i++ {
		v := ifaceOrNil(rv.Index(i))
		if op, ok := v.(Op); ok {
			ops = append(ops, op)
			continue
		}
		bare = append(bare, v)
	}
	if len(bare) > 0 {
		ops = append(ops, In{Values: bare})
	}
	return OpOr{Ops: ops}
}

func ifaceOrNil(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	i := v.Interface()
	if i == nil {
		return nil
	}
	return i
}
