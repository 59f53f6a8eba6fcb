package testutil

import (
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/schema"
)

// Doctypes used across tests.
const (
	DoctypeTodos   = "io.cozy.todos"
	DoctypePersons = "io.cozy.persons"
	DoctypeIcons   = "io.cozy.files.icons"
)

// TodosSchema declares todos with authors (has-many persons), an owner
// (has-one person) and attachments (files), files with icons, and persons.
func TodosSchema() *schema.Schema {
	return schema.MustNew(
		schema.Doctype{
			Name:           "todos",
			Doctype:        DoctypeTodos,
			DoctypeVersion: 4,
			Relationships: []schema.Relationship{
				{Name: "attachments", Doctype: ir.DoctypeFiles, Kind: schema.HasManyFiles},
				{Name: "authors", Doctype: DoctypePersons, Kind: schema.HasMany},
				{Name: "owner", Doctype: DoctypePersons, Kind: schema.HasOne},
			},
		},
		schema.Doctype{
			Name:    "files",
			Doctype: ir.DoctypeFiles,
			Relationships: []schema.Relationship{
				{Name: "icons", Doctype: DoctypeIcons, Kind: schema.HasMany},
			},
		},
		schema.Doctype{Name: "persons", Doctype: DoctypePersons},
	)
}

// Todo builds a todo document.
func Todo(id, label string, authors ...string) ir.Document {
	doc := ir.Document{
		Type:       DoctypeTodos,
		ID:         id,
		Attributes: ir.IRObject{"label": ir.IRString(label), "done": ir.IRBool(false)},
	}
	if len(authors) > 0 {
		refs := make([]ir.Ref, len(authors))
		for i, a := range authors {
			refs[i] = ir.Ref{Type: DoctypePersons, ID: a}
		}
		doc.SetRefs("authors", refs)
	}
	return doc
}

// Person builds a person document.
func Person(id, name string) ir.Document {
	return ir.Document{
		Type:       DoctypePersons,
		ID:         id,
		Attributes: ir.IRObject{"name": ir.IRString(name)},
	}
}

// File builds a file document referenced by the given todos.
func File(id, name string, todoIDs ...string) ir.Document {
	doc := ir.Document{
		Type:       ir.DoctypeFiles,
		ID:         id,
		Attributes: ir.IRObject{"name": ir.IRString(name)},
	}
	if len(todoIDs) > 0 {
		refs := make([]ir.Ref, len(todoIDs))
		for i, t := range todoIDs {
			refs[i] = ir.Ref{Type: DoctypeTodos, ID: t}
		}
		doc.SetRefs(ir.ReferencedBy, refs)
	}
	return doc
}

// Refs builds refs of one doctype.
func Refs(doctype string, ids ...string) []ir.Ref {
	out := make([]ir.Ref, len(ids))
	for i, id := range ids {
		out[i] = ir.Ref{Type: doctype, ID: id}
	}
	return out
}
