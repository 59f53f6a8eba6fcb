package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
)

func TestCompile_AllOfDoctype(t *testing.T) {
	sql, params, err := NewCompiler().Compile(query.Q("io.cozy.todos"))
	require.NoError(t, err)

	assert.Equal(t, "SELECT body FROM documents WHERE doctype = ? ORDER BY id ASC COLLATE BINARY", sql)
	assert.Equal(t, []any{"io.cozy.todos"}, params)
}

func TestCompile_ByID(t *testing.T) {
	sql, params, err := NewCompiler().Compile(query.Q("io.cozy.todos").GetByID("t1"))
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE doctype = ? AND id = ?")
	assert.Equal(t, []any{"io.cozy.todos", "t1"}, params)
}

func TestCompile_ByIDs(t *testing.T) {
	sql, params, err := NewCompiler().Compile(query.Q("io.cozy.todos").GetByIDs("a", "b", "c"))
	require.NoError(t, err)

	assert.Contains(t, sql, "id IN (?, ?, ?)")
	assert.Equal(t, []any{"io.cozy.todos", "a", "b", "c"}, params)
}

func TestCompile_Selector(t *testing.T) {
	def := query.Q("io.cozy.todos").Where(
		query.Eq("done", ir.IRBool(true)),
		query.OneOf("label", ir.IRString("x"), ir.IRString("y")),
	)

	sql, params, err := NewCompiler().Compile(def)
	require.NoError(t, err)

	assert.Contains(t, sql, "(json_extract(body, ?) = ?) AND (json_extract(body, ?) IN (?, ?))")
	assert.Equal(t, []any{"io.cozy.todos", `$."done"`, int64(1), `$."label"`, "x", "y"}, params)
	assert.NotContains(t, sql, "label", "field paths are bound, never interpolated")
}

func TestCompile_NullAndNestedPath(t *testing.T) {
	def := query.Q("io.cozy.todos").Where(query.Eq("metadata.archived", ir.IRNull{}))

	sql, params, err := NewCompiler().Compile(def)
	require.NoError(t, err)

	assert.Contains(t, sql, "json_extract(body, ?) IS NULL")
	assert.Equal(t, []any{"io.cozy.todos", `$."metadata"."archived"`}, params)
}

func TestCompile_EmptyIn(t *testing.T) {
	sql, _, err := NewCompiler().Compile(query.Q("io.cozy.todos").Where(query.OneOf("label")))
	require.NoError(t, err)
	assert.Contains(t, sql, "1 = 0")
}

func TestCompile_SortAndPaging(t *testing.T) {
	def := query.Q("io.cozy.todos").
		Sort(query.SortField{Field: "label", Desc: true}).
		Limit(10).
		Skip(20)

	sql, params, err := NewCompiler().Compile(def)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT body FROM documents WHERE doctype = ? ORDER BY json_extract(body, ?) DESC, id ASC COLLATE BINARY LIMIT ? OFFSET ?",
		sql)
	assert.Equal(t, []any{"io.cozy.todos", `$."label"`, 10, 20}, params)
}

func TestCompile_SkipWithoutLimit(t *testing.T) {
	sql, params, err := NewCompiler().Compile(query.Q("io.cozy.todos").Skip(5))
	require.NoError(t, err)

	assert.Contains(t, sql, "LIMIT -1 OFFSET ?")
	assert.Equal(t, []any{"io.cozy.todos", 5}, params)
}

func TestCompile_OrderByAlwaysPresent(t *testing.T) {
	defs := map[string]query.Definition{
		"all":      query.Q("io.cozy.todos"),
		"by id":    query.Q("io.cozy.todos").GetByID("t1"),
		"selector": query.Q("io.cozy.todos").Where(query.Eq("done", ir.IRBool(false))),
		"sorted":   query.Q("io.cozy.todos").Sort(query.SortField{Field: "label"}),
	}
	for name, def := range defs {
		t.Run(name, func(t *testing.T) {
			sql, _, err := NewCompiler().Compile(def)
			require.NoError(t, err)
			assert.Contains(t, sql, "id ASC COLLATE BINARY")
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  query.Definition
		want error
	}{
		{"missing doctype", query.Definition{}, query.ErrInvalidDefinition},
		{"referenced by", query.Q(ir.DoctypeFiles).ReferencedByDocs(ir.Ref{Type: "io.cozy.todos", ID: "t1"}), ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewCompiler().Compile(tt.def)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompile_ObjectValueRejected(t *testing.T) {
	def := query.Q("io.cozy.todos").Where(query.Eq("meta", ir.IRObject{"a": ir.IRInt(1)}))
	_, _, err := NewCompiler().Compile(def)
	assert.Error(t, err)
}
