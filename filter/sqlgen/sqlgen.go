// Package sqlgen compiles filter trees into SQL predicates with
// positional arguments, for relational stores and faceted indexes.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/recdex/filter"
)

// Dialect describes backend SQL capabilities.
type Dialect struct {
	Name string
	// NativeILike means the backend has an ILIKE operator; otherwise
	// case-insensitive matching lowers both sides.
	NativeILike bool
	// JSONExtract means json_extract(col, '$.path') is available.
	JSONExtract bool
}

// SQLite is the dialect of modernc.org/sqlite.
var SQLite = Dialect{Name: "sqlite", JSONExtract: true}

// Postgres is provided for callers bringing their own driver.
var Postgres = Dialect{Name: "postgres", NativeILike: true}

// NFRelation locates the normalized-element side relation used by NF
// conditions. Element fields map to its columns by name.
type NFRelation struct {
	Table     string
	RefColumn string
}

// Schema maps filter fields onto a relation.
type Schema struct {
	Table    string
	IDColumn string
	// Columns maps field names to column names. Fields not listed
	// compile to an error.
	Columns map[string]string
	NF      NFRelation
}

// Column resolves a field name.
func (s Schema) Column(field string) (string, bool) {
	col, ok := s.Columns[field]
	return col, ok
}

// Predicate is a compiled WHERE clause with its arguments.
type Predicate struct {
	SQL  string
	Args []any
}

// MatchAll and MatchNone are the vacuous predicates: an And with no
// children compiles to MatchAll, an Or or In with none to MatchNone.
const (
	MatchAll  = "1 = 1"
	MatchNone = "1 = 0"
)

// Compile translates a filter tree into a predicate over the schema's
// table. A nil node matches everything.
func Compile(n filter.Node, schema Schema, dialect Dialect) (Predicate, error) {
	c := &compiler{schema: schema, dialect: dialect}
	sql, err := c.node(n)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{SQL: sql, Args: c.args}, nil
}

type compiler struct {
	schema  Schema
	dialect Dialect
	args    []any
}

func (c *compiler) node(n filter.Node) (string, error) {
	switch t := n.(type) {
	case nil:
		return MatchAll, nil
	case filter.Field:
		// NF targets the side relation, not a column of the main table.
		if nf, ok := t.Op.(filter.NF); ok {
			return c.nf(nf)
		}
		col, ok := c.schema.Column(t.Name)
		if !ok {
			return "", fmt.Errorf("no column mapped for field %q", t.Name)
		}
		return c.op(col, t.Op)
	case filter.And:
		return c.junction(t.Nodes, " AND ", MatchAll)
	case filter.Or:
		return c.junction(t.Nodes, " OR ", MatchNone)
	case filter.Not:
		sub, err := c.node(t.Node)
		if err != nil {
			return "", err
		}
		return "NOT (" + sub + ")", nil
	}
	return "", fmt.Errorf("unsupported filter node %T", n)
}

func (c *compiler) junction(nodes []filter.Node, sep, empty string) (string, error) {
	if len(nodes) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		sub, err := c.node(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, sub)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// op compiles a field-scoped operator against a column expression.
func (c *compiler) op(col string, op filter.Op) (string, error) {
	switch t := op.(type) {
	case filter.Eq:
		if t.Value == nil {
			return col + " IS NULL", nil
		}
		c.args = append(c.args, t.Value)
		return col + " = ?", nil
	case filter.Gt:
		c.args = append(c.args, t.Value)
		return col + " > ?", nil
	case filter.Gte:
		c.args = append(c.args, t.Value)
		return col + " >= ?", nil
	case filter.Lt:
		c.args = append(c.args, t.Value)
		return col + " < ?", nil
	case filter.Lte:
		c.args = append(c.args, t.Value)
		return col + " <= ?", nil
	case filter.Between:
		return c.between(col, t)
	case filter.Like:
		c.args = append(c.args, t.Pattern)
		return col + " LIKE ?", nil
	case filter.Ilike:
		c.args = append(c.args, t.Pattern)
		if c.dialect.NativeILike {
			return col + " ILIKE ?", nil
		}
		return "LOWER(" + col + ") LIKE LOWER(?)", nil
	case filter.In:
		if len(t.Values) == 0 {
			return MatchNone, nil
		}
		marks := make([]string, len(t.Values))
		for i, v := range t.Values {
			marks[i] = "?"
			c.args = append(c.args, v)
		}
		return col + " IN (" + strings.Join(marks, ", ") + ")", nil
	case filter.OpAnd:
		return c.opJunction(col, t.Ops, " AND ", MatchAll)
	case filter.OpOr:
		return c.opJunction(col, t.Ops, " OR ", MatchNone)
	case filter.OpNot:
		sub, err := c.op(col, t.Op)
		if err != nil {
			return "", err
		}
		return "NOT (" + sub + ")", nil
	case filter.Exists:
		return col + " IS NOT NULL", nil
	case filter.NotExists:
		return col + " IS NULL", nil
	case filter.JSON:
		return c.json(col, t)
	case filter.NF:
		return c.nf(t)
	}
	return "", fmt.Errorf("unsupported filter operator %T", op)
}

func (c *compiler) opJunction(col string, ops []filter.Op, sep, empty string) (string, error) {
	if len(ops) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		sub, err := c.op(col, op)
		if err != nil {
			return "", err
		}
		parts = append(parts, sub)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (c *compiler) between(col string, b filter.Between) (string, error) {
	var parts []string
	if !filter.Unbounded(b.Lo) {
		c.args = append(c.args, b.Lo)
		parts = append(parts, col+" >= ?")
	}
	if !filter.Unbounded(b.Hi) {
		c.args = append(c.args, b.Hi)
		parts = append(parts, col+" <= ?")
	}
	switch len(parts) {
	case 0:
		return MatchAll, nil
	case 1:
		return parts[0], nil
	}
	return "(" + parts[0] + " AND " + parts[1] + ")", nil
}

func (c *compiler) json(col string, j filter.JSON) (string, error) {
	if len(j.Paths) == 0 {
		return MatchAll, nil
	}
	parts := make([]string, 0, len(j.Paths))
	for _, p := range j.Paths {
		sub, err := c.jsonPath(col, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, sub)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (c *compiler) jsonPath(col string, p filter.PathOp) (string, error) {
	if c.dialect.JSONExtract {
		expr := fmt.Sprintf("json_extract(%s, '$.%s')", col, p.Path)
		return c.op(expr, p.Op)
	}
	// Without json_extract only exact matches and existence checks can
	// fall back to containment on the serialized column.
	leaf := p.Path
	if i := strings.LastIndexByte(leaf, '.'); i >= 0 {
		leaf = leaf[i+1:]
	}
	switch t := p.Op.(type) {
	case filter.Eq:
		c.args = append(c.args, fmt.Sprintf(`%%"%s":%s%%`, leaf, jsonScalar(t.Value)))
		return col + " LIKE ?", nil
	case filter.Exists:
		c.args = append(c.args, fmt.Sprintf(`%%"%s":%%`, leaf))
		return col + " LIKE ?", nil
	case filter.NotExists:
		c.args = append(c.args, fmt.Sprintf(`%%"%s":%%`, leaf))
		return col + " NOT LIKE ?", nil
	}
	return "", fmt.Errorf("dialect %s cannot compile %T on json path %q", c.dialect.Name, p.Op, p.Path)
}

func jsonScalar(v any) string {
	switch t := v.(type) {
	case string:
		return `"` + t + `"`
	default:
		return fmt.Sprintf("%v", t)
	}
}

// nf compiles a normalized-form condition into a correlated EXISTS
// subquery over the side relation.
func (c *compiler) nf(nf filter.NF) (string, error) {
	rel := c.schema.NF
	if rel.Table == "" {
		return "", fmt.Errorf("schema has no normalized-element relation")
	}
	conds := []string{fmt.Sprintf("%s.%s = %s.%s", rel.Table, rel.RefColumn, c.schema.Table, c.schema.IDColumn)}
	for _, ec := range nf.Conds {
		sub, err := c.op(rel.Table+"."+ec.Field, ec.Op)
		if err != nil {
			return "", err
		}
		conds = append(conds, sub)
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)",
		rel.Table, strings.Join(conds, " AND ")), nil
}
