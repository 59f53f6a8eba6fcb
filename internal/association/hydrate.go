package association

import (
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/schema"
)

// HydratedDocument is a document whose declared relationships are live
// associations. Associations read and write the embedded Document's raw
// refs.
type HydratedDocument struct {
	ir.Document

	// QueryName is the query the document was read through, if any.
	QueryName string

	associations map[string]Association
	names        []string
}

// Get returns the association of a declared relationship, nil otherwise.
func (h *HydratedDocument) Get(name string) Association {
	if h == nil {
		return nil
	}
	return h.associations[name]
}

// Associations returns the associations sorted by relationship name.
func (h *HydratedDocument) Associations() []Association {
	out := make([]Association, 0, len(h.names))
	for _, name := range h.names {
		out = append(out, h.associations[name])
	}
	return out
}

// Dehydrate returns the plain document with every association in raw form,
// ready for the wire.
func (h *HydratedDocument) Dehydrate() ir.Document {
	doc := h.Document.Clone()
	for _, a := range h.Associations() {
		doc = a.Dehydrate(doc)
	}
	return doc
}

// Hydrator builds hydrated documents from a schema and a resolver.
type Hydrator struct {
	schema   *schema.Schema
	resolver Resolver
}

// NewHydrator creates a hydrator. A nil schema hydrates nothing.
func NewHydrator(s *schema.Schema, r Resolver) *Hydrator {
	return &Hydrator{schema: s, resolver: r}
}

// HydrateDocuments hydrates docs of a doctype read through queryName. Nil
// entries stay nil. Inputs are copied, never aliased.
func (h *Hydrator) HydrateDocuments(doctype string, docs []*ir.Document, queryName string) []*HydratedDocument {
	out := make([]*HydratedDocument, len(docs))
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		d := doc.Clone()
		if d.Type == "" {
			d.Type = doctype
		}
		out[i] = h.hydrate(d, queryName)
	}
	return out
}

// HydrateDocument hydrates a single document.
func (h *Hydrator) HydrateDocument(doc ir.Document) *HydratedDocument {
	return h.hydrate(doc.Clone(), "")
}

// MakeNewDocument returns an empty document of doctype with every declared
// relationship ready to receive refs.
func (h *Hydrator) MakeNewDocument(doctype string) *HydratedDocument {
	return h.hydrate(ir.Document{Type: doctype, Attributes: ir.IRObject{}}, "")
}

func (h *Hydrator) hydrate(doc ir.Document, queryName string) *HydratedDocument {
	hd := &HydratedDocument{
		Document:     doc,
		QueryName:    queryName,
		associations: map[string]Association{},
	}
	for _, rel := range h.schema.Relationships(doc.Type) {
		hd.associations[rel.Name] = newAssociation(&hd.Document, rel, h.resolver)
		hd.names = append(hd.names, rel.Name)
	}
	return hd
}
