package association

import (
	"slices"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/schema"
)

// IncludeQuery returns the single definition fetching the targets of rel
// for every owner at once. It reports false when no owner has anything to
// fetch.
func IncludeQuery(rel schema.Relationship, owners []ir.Document) (query.Definition, bool) {
	if rel.Kind == schema.HasManyFiles {
		refs := make([]ir.Ref, 0, len(owners))
		for _, o := range owners {
			if o.ID != "" && !slices.Contains(refs, o.Ref()) {
				refs = append(refs, o.Ref())
			}
		}
		if len(refs) == 0 {
			return query.Definition{}, false
		}
		return query.Q(rel.Doctype).ReferencedByDocs(refs...), true
	}

	ids := []string{}
	for _, o := range owners {
		for _, ref := range o.Refs(rel.Name) {
			if ref.Type != "" && ref.Type != rel.Doctype {
				continue
			}
			if !slices.Contains(ids, ref.ID) {
				ids = append(ids, ref.ID)
			}
		}
	}
	if len(ids) == 0 {
		return query.Definition{}, false
	}
	return query.Q(rel.Doctype).GetByIDs(ids...), true
}

// Match returns the refs of owner's rel found among included documents.
// For file relationships a file matches when its referenced_by points at
// owner. The result is never nil.
func Match(rel schema.Relationship, owner ir.Document, included []ir.Document) []ir.Ref {
	out := []ir.Ref{}

	if rel.Kind == schema.HasManyFiles {
		self := owner.Ref()
		for _, doc := range included {
			if docType(doc, rel) != rel.Doctype {
				continue
			}
			if slices.Contains(doc.Refs(ir.ReferencedBy), self) {
				out = append(out, ir.Ref{Type: rel.Doctype, ID: doc.ID})
			}
		}
		return out
	}

	found := make(map[string]bool, len(included))
	for _, doc := range included {
		if docType(doc, rel) == rel.Doctype {
			found[doc.ID] = true
		}
	}
	for _, ref := range owner.Refs(rel.Name) {
		if found[ref.ID] && (ref.Type == "" || ref.Type == rel.Doctype) {
			out = append(out, ir.Ref{Type: rel.Doctype, ID: ref.ID})
		}
	}
	return out
}

func docType(doc ir.Document, rel schema.Relationship) string {
	if doc.Type == "" {
		return rel.Doctype
	}
	return doc.Type
}
