// Package association turns raw relationship refs into live associations
// and back.
//
// An association never owns the documents it points at. It keeps a pointer
// to its owner's raw refs and resolves targets by (type, id) against a
// Resolver, normally the normalized store, each time they are read.
package association

import (
	"slices"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/schema"
)

// Resolver is the read surface associations resolve targets against.
type Resolver interface {
	Document(doctype, id string) (*ir.Document, error)
}

// Lister is implemented by resolvers that can enumerate a doctype. File
// associations use it to find files pointing back at their owner when the
// owner carries no refs.
type Lister interface {
	All(doctype string) ([]ir.Document, error)
}

// Association is a hydrated relationship.
type Association interface {
	Name() string
	Doctype() string
	Kind() schema.Kind

	// Raw returns the refs currently held by the owner.
	Raw() []ir.Ref

	// Documents resolves the targets found in the resolver. Targets not
	// loaded yet are skipped; no refs yields an empty slice.
	Documents() []ir.Document

	// Add appends refs not already present.
	Add(refs ...ir.Ref)

	// Remove drops refs.
	Remove(refs ...ir.Ref)

	// Dehydrate returns doc with this relationship in raw form.
	Dehydrate(doc ir.Document) ir.Document

	// Query returns the definition fetching the targets from the backend.
	// It reports false when there is nothing to fetch.
	Query() (query.Definition, bool)
}

type base struct {
	owner    *ir.Document
	rel      schema.Relationship
	resolver Resolver
}

func (a *base) Name() string      { return a.rel.Name }
func (a *base) Doctype() string   { return a.rel.Doctype }
func (a *base) Kind() schema.Kind { return a.rel.Kind }

func (a *base) Raw() []ir.Ref {
	refs := a.owner.Refs(a.rel.Name)
	if refs == nil {
		return []ir.Ref{}
	}
	return slices.Clone(refs)
}

func (a *base) Query() (query.Definition, bool) {
	return IncludeQuery(a.rel, []ir.Document{*a.owner})
}

func (a *base) Documents() []ir.Document {
	return a.resolve(a.owner.Refs(a.rel.Name))
}

func (a *base) resolve(refs []ir.Ref) []ir.Document {
	out := []ir.Document{}
	if a.resolver == nil {
		return out
	}
	for _, ref := range refs {
		doctype := ref.Type
		if doctype == "" {
			doctype = a.rel.Doctype
		}
		doc, err := a.resolver.Document(doctype, ref.ID)
		if err != nil || doc == nil {
			continue
		}
		out = append(out, *doc)
	}
	return out
}

func (a *base) Add(refs ...ir.Ref) {
	current := a.owner.Refs(a.rel.Name)
	next := slices.Clone(current)
	for _, ref := range refs {
		if !slices.Contains(next, ref) {
			next = append(next, ref)
		}
	}
	a.owner.SetRefs(a.rel.Name, next)
}

func (a *base) Remove(refs ...ir.Ref) {
	if _, ok := a.owner.Relationships[a.rel.Name]; !ok {
		return
	}
	next := slices.DeleteFunc(slices.Clone(a.owner.Refs(a.rel.Name)), func(r ir.Ref) bool {
		return slices.Contains(refs, r)
	})
	a.owner.SetRefs(a.rel.Name, next)
}

// Dehydrate copies the owner's raw refs into doc. A relationship the owner
// never declared stays absent, so hydrate then dehydrate is the identity.
func (a *base) Dehydrate(doc ir.Document) ir.Document {
	out := doc.Clone()
	rel, ok := a.owner.Relationships[a.rel.Name]
	if !ok {
		delete(out.Relationships, a.rel.Name)
		if len(out.Relationships) == 0 {
			out.Relationships = nil
		}
		return out
	}
	out.SetRefs(a.rel.Name, slices.Clone(rel.Data))
	return out
}

// HasOne points at a single document.
type HasOne struct {
	base
}

// Document returns the target, or nil when unset or not loaded.
func (a *HasOne) Document() *ir.Document {
	docs := a.Documents()
	if len(docs) == 0 {
		return nil
	}
	return &docs[0]
}

// Add replaces the target with the last given ref.
func (a *HasOne) Add(refs ...ir.Ref) {
	if len(refs) == 0 {
		return
	}
	a.owner.SetRefs(a.rel.Name, []ir.Ref{refs[len(refs)-1]})
}

// HasMany points at several documents whose refs live on the owner.
type HasMany struct {
	base
}

// HasManyFiles points at files. Besides the owner's refs, the files'
// referenced_by relationship is authoritative.
type HasManyFiles struct {
	base
}

// Documents resolves the owner's refs, or, when the owner holds none, every
// loaded file whose referenced_by points at the owner.
func (a *HasManyFiles) Documents() []ir.Document {
	if refs := a.owner.Refs(a.rel.Name); len(refs) > 0 {
		return a.resolve(refs)
	}
	out := []ir.Document{}
	lister, ok := a.resolver.(Lister)
	if !ok || a.owner.ID == "" {
		return out
	}
	files, err := lister.All(a.rel.Doctype)
	if err != nil {
		return out
	}
	owner := a.owner.Ref()
	for _, f := range files {
		if slices.Contains(f.Refs(ir.ReferencedBy), owner) {
			out = append(out, f)
		}
	}
	return out
}

// LinkMutation returns the mutation recording that owner now points at
// refs. When owner is a file the link is stored on the file itself
// (referenced_by); otherwise every referenced file records owner.
func LinkMutation(owner ir.Document, refs []ir.Ref) query.Mutation {
	if owner.Type == ir.DoctypeFiles {
		return query.ReferencedBy(owner, refs)
	}
	return query.ReferencesTo(owner, refs)
}

// UnlinkMutation is the inverse of LinkMutation.
func UnlinkMutation(owner ir.Document, refs []ir.Ref) query.Mutation {
	if owner.Type == ir.DoctypeFiles {
		return query.UnreferencedBy(owner, refs)
	}
	return query.UnreferencesTo(owner, refs)
}

func newAssociation(owner *ir.Document, rel schema.Relationship, r Resolver) Association {
	b := base{owner: owner, rel: rel, resolver: r}
	switch rel.Kind {
	case schema.HasOne:
		return &HasOne{base: b}
	case schema.HasManyFiles:
		return &HasManyFiles{base: b}
	default:
		return &HasMany{base: b}
	}
}
