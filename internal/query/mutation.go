package query

import (
	"encoding/json"
	"slices"

	"github.com/roach88/doclink/internal/ir"
)

// MutationType names a write.
type MutationType string

const (
	CreateDocument     MutationType = "CREATE_DOCUMENT"
	UpdateDocument     MutationType = "UPDATE_DOCUMENT"
	DeleteDocument     MutationType = "DELETE_DOCUMENT"
	AddReferencesTo    MutationType = "ADD_REFERENCES_TO"
	RemoveReferencesTo MutationType = "REMOVE_REFERENCES_TO"
	AddReferencedBy    MutationType = "ADD_REFERENCED_BY"
	RemoveReferencedBy MutationType = "REMOVE_REFERENCED_BY"
)

// Mutation is a single write.
//
// For the reference mutations, Document is the document the references are
// about and References are the other side:
//   - AddReferencesTo(doc, files): files now reference doc
//   - AddReferencedBy(file, docs): file is now referenced by docs
type Mutation struct {
	Type       MutationType
	Document   ir.Document
	References []ir.Ref
}

func (Mutation) operation() {}
func (Mutation) step()      {}

// Kind returns KindMutation.
func (Mutation) Kind() Kind { return KindMutation }

// Doctype returns the doctype the mutation writes to.
func (m Mutation) Doctype() string {
	return m.Document.Type
}

// Create builds a CREATE_DOCUMENT mutation.
func Create(doc ir.Document) Mutation {
	return Mutation{Type: CreateDocument, Document: doc}
}

// Update builds an UPDATE_DOCUMENT mutation.
func Update(doc ir.Document) Mutation {
	return Mutation{Type: UpdateDocument, Document: doc}
}

// Delete builds a DELETE_DOCUMENT mutation.
func Delete(doc ir.Document) Mutation {
	return Mutation{Type: DeleteDocument, Document: doc}
}

// ReferencesTo builds an ADD_REFERENCES_TO mutation: every ref (a file)
// gains a reference to doc.
func ReferencesTo(doc ir.Document, refs []ir.Ref) Mutation {
	return Mutation{Type: AddReferencesTo, Document: doc, References: slices.Clone(refs)}
}

// UnreferencesTo builds a REMOVE_REFERENCES_TO mutation.
func UnreferencesTo(doc ir.Document, refs []ir.Ref) Mutation {
	return Mutation{Type: RemoveReferencesTo, Document: doc, References: slices.Clone(refs)}
}

// ReferencedBy builds an ADD_REFERENCED_BY mutation: file gains
// referenced_by entries for every ref.
func ReferencedBy(file ir.Document, refs []ir.Ref) Mutation {
	return Mutation{Type: AddReferencedBy, Document: file, References: slices.Clone(refs)}
}

// UnreferencedBy builds a REMOVE_REFERENCED_BY mutation.
func UnreferencedBy(file ir.Document, refs []ir.Ref) Mutation {
	return Mutation{Type: RemoveReferencedBy, Document: file, References: slices.Clone(refs)}
}

// Object returns the object form of the mutation, for logs and the action
// log.
func (m Mutation) Object() ir.IRObject {
	obj := ir.IRObject{
		"mutationType": ir.IRString(m.Type),
		"document":     m.Document.Object(),
	}
	if len(m.References) > 0 {
		refs := make(ir.IRArray, len(m.References))
		for i, r := range m.References {
			refs[i] = ir.IRObject{"type": ir.IRString(r.Type), "id": ir.IRString(r.ID)}
		}
		obj["references"] = refs
	}
	return obj
}

// MarshalJSON emits the object form.
func (m Mutation) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Object())
}

// Step is one element of a mutation batch: either a Mutation, or a
// MutationCreator deriving mutations from the response to the first one.
type Step interface {
	step()
}

// MutationCreator derives follow-up mutations from the response to the
// first mutation of a batch, typically to link references once the id of a
// newly created document is known.
type MutationCreator func(resp *Response) []Mutation

func (MutationCreator) step() {}

// Steps is a convenience for building a batch from mutations alone.
func Steps(ms ...Mutation) []Step {
	out := make([]Step, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}
