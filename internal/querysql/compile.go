// Package querysql compiles query definitions to parameterized SQLite SQL
// over the snapshot documents table.
//
// Attribute access goes through json_extract on the stored body. Field paths
// and values are both bound as parameters; nothing from a definition is
// interpolated into the SQL text.
package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
)

// ErrUnsupported is returned for definitions the snapshot cannot answer.
var ErrUnsupported = errors.New("definition not supported by the snapshot")

// Table is the snapshot table queried by compiled statements.
const Table = "documents"

// Compiler compiles query.Definition values to SQL.
type Compiler struct {
	table string
}

// NewCompiler creates a compiler over the default documents table.
func NewCompiler() *Compiler {
	return &Compiler{table: Table}
}

// Compile converts a definition to (sql, params). The statement selects the
// body column.
//
// Every statement ends with the stable tiebreaker "id ASC COLLATE BINARY" so
// that results are deterministic across runs.
func (c *Compiler) Compile(def query.Definition) (string, []any, error) {
	if def.Doctype == "" {
		return "", nil, fmt.Errorf("compile: %w", query.ErrInvalidDefinition)
	}
	if len(def.ReferencedBy) > 0 {
		return "", nil, fmt.Errorf("compile referenced-by query: %w", ErrUnsupported)
	}

	where := []string{"doctype = ?"}
	params := []any{def.Doctype}

	switch {
	case def.ID != "":
		where = append(where, "id = ?")
		params = append(params, def.ID)
	case len(def.IDs) > 0:
		where = append(where, "id IN ("+placeholders(len(def.IDs))+")")
		for _, id := range def.IDs {
			params = append(params, id)
		}
	}

	if def.Selector != nil {
		sql, ps, err := c.compilePredicate(def.Selector)
		if err != nil {
			return "", nil, fmt.Errorf("compile selector: %w", err)
		}
		where = append(where, sql)
		params = append(params, ps...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT body FROM %s WHERE %s ORDER BY ", c.table, strings.Join(where, " AND "))
	for _, s := range def.SortBy {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "json_extract(body, ?) %s, ", dir)
		params = append(params, jsonPath(s.Field))
	}
	b.WriteString("id ASC COLLATE BINARY")

	if def.PageLimit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, def.PageLimit, def.PageSkip)
	} else if def.PageSkip > 0 {
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, def.PageSkip)
	}

	return b.String(), params, nil
}

func (c *Compiler) compilePredicate(p query.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case query.Equals:
		return compileEquals(pred)
	case query.In:
		return compileIn(pred)
	case query.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq query.Equals) (string, []any, error) {
	if isNull(eq.Value) {
		return "json_extract(body, ?) IS NULL", []any{jsonPath(eq.Field)}, nil
	}
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", eq.Field, err)
	}
	return "json_extract(body, ?) = ?", []any{jsonPath(eq.Field), param}, nil
}

func compileIn(in query.In) (string, []any, error) {
	if len(in.Values) == 0 {
		return "1 = 0", nil, nil
	}
	params := []any{jsonPath(in.Field)}
	for _, v := range in.Values {
		param, err := irValueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", in.Field, err)
		}
		params = append(params, param)
	}
	return "json_extract(body, ?) IN (" + placeholders(len(in.Values)) + ")", params, nil
}

func (c *Compiler) compileAnd(and query.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, ps, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// jsonPath turns a dotted attribute path into a SQLite JSON path.
// Segments are quoted so that keys like "_id" or "a-b" stay literal.
func jsonPath(field string) string {
	segs := strings.Split(field, ".")
	for i, s := range segs {
		segs[i] = `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return "$." + strings.Join(segs, ".")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isNull(v ir.IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(ir.IRNull)
	return ok
}

// irValueToParam converts a scalar IRValue to a SQL parameter.
// json_extract yields 1/0 for JSON booleans, so booleans bind as integers.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRArray, ir.IRObject:
		return nil, fmt.Errorf("%T cannot be used as SQL parameter directly", v)
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
