package filter

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// existsMarker is the wire form of an existence check.
const existsMarker = "__ellipsis__"

const fieldPrefix = "FIELD:"

// MarshalWire encodes a filter tree into its wire JSON form.
// A nil node encodes as JSON null.
func MarshalWire(n Node) ([]byte, error) {
	return json.Marshal(encodeNode(n))
}

// UnmarshalWire decodes wire JSON into a filter tree. Malformed input is
// rejected with a *ValidationError naming the offending key.
func UnmarshalWire(data []byte) (Node, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, validationErrf("", "not valid JSON: %v", err)
	}
	return decodeNode(raw, "$")
}

func encodeNode(n Node) any {
	switch t := n.(type) {
	case nil:
		return nil
	case Field:
		return map[string]any{fieldPrefix + t.Name: encodeOp(t.Op)}
	case And:
		return map[string]any{"AND": encodeNodes(t.Nodes)}
	case Or:
		return map[string]any{"OR": encodeNodes(t.Nodes)}
	case Not:
		return map[string]any{"NOT": encodeNode(t.Node)}
	}
	return nil
}

func encodeNodes(nodes []Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = encodeNode(n)
	}
	return out
}

func encodeOp(op Op) any {
	switch t := op.(type) {
	case Eq:
		return map[string]any{"==": t.Value}
	case Gt:
		return map[string]any{">": t.Value}
	case Gte:
		return map[string]any{">=": t.Value}
	case Lt:
		return map[string]any{"<": t.Value}
	case Lte:
		return map[string]any{"<=": t.Value}
	case Between:
		var parts []any
		if !Unbounded(t.Lo) {
			parts = append(parts, map[string]any{">=": t.Lo})
		}
		if !Unbounded(t.Hi) {
			parts = append(parts, map[string]any{"<=": t.Hi})
		}
		if parts == nil {
			parts = []any{}
		}
		return map[string]any{"AND": parts}
	case Like:
		return map[string]any{"LIKE": t.Pattern}
	case Ilike:
		return map[string]any{"ILIKE": t.Pattern}
	case In:
		vals := t.Values
		if vals == nil {
			vals = []any{}
		}
		return map[string]any{"IN": vals}
	case OpAnd:
		return map[string]any{"AND": encodeOps(t.Ops)}
	case OpOr:
		return map[string]any{"OR": encodeOps(t.Ops)}
	case OpNot:
		return map[string]any{"NOT": encodeOp(t.Op)}
	case Exists:
		return existsMarker
	case NotExists:
		return map[string]any{"NOT": existsMarker}
	case JSON:
		paths := make(map[string]any, len(t.Paths))
		for _, p := range t.Paths {
			paths[p.Path] = encodeValueOp(p.Op)
		}
		return map[string]any{"JSON": paths}
	case NF:
		conds := make(map[string]any, len(t.Conds))
		for _, c := range t.Conds {
			conds[c.Field] = encodeValueOp(c.Op)
		}
		return map[string]any{"NF": conds}
	}
	return nil
}

func encodeOps(ops []Op) []any {
	out := make([]any, len(ops))
	for i, op := range ops {
		out[i] = encodeOp(op)
	}
	return out
}

// encodeValueOp writes ops in value position (JSON paths, NF conditions),
// where exact matches stay bare scalars.
func encodeValueOp(op Op) any {
	if eq, ok := op.(Eq); ok {
		return eq.Value
	}
	return encodeOp(op)
}

func decodeNode(raw any, path string) (Node, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, validationErrf(path, "expected an expression object, got %T", raw)
	}
	key, val, err := singleKey(obj, path)
	if err != nil {
		return nil, err
	}
	kpath := path + "." + key
	switch {
	case key == "AND" || key == "OR":
		items, ok := val.([]any)
		if !ok {
			return nil, validationErrf(kpath, "expected a list")
		}
		nodes := make([]Node, 0, len(items))
		for i, item := range items {
			n, err := decodeNode(item, elemPath(kpath, i))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		if key == "AND" {
			return And{Nodes: nodes}, nil
		}
		return Or{Nodes: nodes}, nil
	case key == "NOT":
		n, err := decodeNode(val, kpath)
		if err != nil {
			return nil, err
		}
		return Not{Node: n}, nil
	case strings.HasPrefix(key, fieldPrefix):
		name := strings.TrimPrefix(key, fieldPrefix)
		if name == "" {
			return nil, validationErrf(kpath, "empty field name")
		}
		op, err := decodeOp(val, kpath)
		if err != nil {
			return nil, err
		}
		return Field{Name: name, Op: op}, nil
	default:
		return nil, validationErrf(kpath, "operator %q outside field context", key)
	}
}

func decodeOp(raw any, path string) (Op, error) {
	if s, ok := raw.(string); ok && s == existsMarker {
		return Exists{}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		// Bare scalars in op position are exact matches.
		return Eq{Value: raw}, nil
	}
	key, val, err := singleKey(obj, path)
	if err != nil {
		return nil, err
	}
	kpath := path + "." + key
	switch key {
	case "==":
		return Eq{Value: val}, nil
	case ">":
		return Gt{Value: val}, nil
	case ">=":
		return Gte{Value: val}, nil
	case "<":
		return Lt{Value: val}, nil
	case "<=":
		return Lte{Value: val}, nil
	case "LIKE", "ILIKE":
		pat, ok := val.(string)
		if !ok {
			return nil, validationErrf(kpath, "pattern must be a string, got %T", val)
		}
		if key == "LIKE" {
			return Like{Pattern: pat}, nil
		}
		return Ilike{Pattern: pat}, nil
	case "IN":
		items, ok := val.([]any)
		if !ok {
			return nil, validationErrf(kpath, "expected a list")
		}
		return In{Values: items}, nil
	case "AND", "OR":
		items, ok := val.([]any)
		if !ok {
			return nil, validationErrf(kpath, "expected a list")
		}
		ops := make([]Op, 0, len(items))
		for i, item := range items {
			op, err := decodeOp(item, elemPath(kpath, i))
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		if key == "AND" {
			return OpAnd{Ops: ops}, nil
		}
		return OpOr{Ops: ops}, nil
	case "NOT":
		if s, ok := val.(string); ok && s == existsMarker {
			return NotExists{}, nil
		}
		op, err := decodeOp(val, kpath)
		if err != nil {
			return nil, err
		}
		return OpNot{Op: op}, nil
	case "JSON":
		paths, ok := val.(map[string]any)
		if !ok {
			return nil, validationErrf(kpath, "expected an object of paths")
		}
		j := JSON{Paths: make([]PathOp, 0, len(paths))}
		for _, p := range sortedKeys(paths) {
			op, err := decodeOp(paths[p], kpath+"."+p)
			if err != nil {
				return nil, err
			}
			j.Paths = append(j.Paths, PathOp{Path: p, Op: op})
		}
		return j, nil
	case "NF":
		conds, ok := val.(map[string]any)
		if !ok {
			return nil, validationErrf(kpath, "expected an object of element conditions")
		}
		nf := NF{Conds: make([]ElemCond, 0, len(conds))}
		for _, f := range sortedKeys(conds) {
			op, err := decodeOp(conds[f], kpath+"."+f)
			if err != nil {
				return nil, err
			}
			nf.Conds = append(nf.Conds, ElemCond{Field: f, Op: op})
		}
		return nf, nil
	}
	if strings.HasPrefix(key, fieldPrefix) {
		return nil, validationErrf(kpath, "field expression nested inside a field")
	}
	return nil, validationErrf(kpath, "unknown operator %q", key)
}

func singleKey(obj map[string]any, path string) (string, any, error) {
	if len(obj) != 1 {
		return "", nil, validationErrf(path, "expression object must have exactly one key, got %d", len(obj))
	}
	for k, v := range obj {
		return k, v, nil
	}
	return "", nil, validationErrf(path, "empty expression object")
}

func elemPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unbounded reports whether a Between bound is absent: nil or an
// infinite float.
func Unbounded(v any) bool {
	switch f := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsInf(f, 0)
	case float32:
		return math.IsInf(float64(f), 0)
	}
	return false
}
