package query

import (
	"encoding/json"
	"slices"

	"github.com/roach88/doclink/internal/ir"
)

// Kind discriminates the two operation families.
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// Operation is what flows through a link chain.
// Sealed: only Definition and Mutation implement it.
type Operation interface {
	operation()
	Kind() Kind
}

// SortField orders results by one attribute.
type SortField struct {
	Field string
	Desc  bool
}

// Definition is a declarative description of a set of documents.
// The zero value is not valid; start with Q.
//
// Exactly one selection mode applies, checked by Validate:
//   - ID: a single document
//   - IDs: a fixed set of documents
//   - ReferencedBy: files referenced by the given documents
//   - otherwise: every document of Doctype matching Selector (may be nil)
type Definition struct {
	Doctype      string
	ID           string
	IDs          []string
	Selector     Predicate
	Fields       []string
	SortBy       []SortField
	Includes     []string
	ReferencedBy []ir.Ref
	PageLimit    int
	PageSkip     int
	PageBookmark string
}

func (Definition) operation() {}

// Kind returns KindQuery.
func (Definition) Kind() Kind { return KindQuery }

// Q starts a definition over a doctype.
func Q(doctype string) Definition {
	return Definition{Doctype: doctype}
}

// GetByID selects a single document.
func (d Definition) GetByID(id string) Definition {
	d = d.clone()
	d.ID = id
	return d
}

// GetByIDs selects a fixed set of documents.
func (d Definition) GetByIDs(ids ...string) Definition {
	d = d.clone()
	d.IDs = slices.Clone(ids)
	return d
}

// Where adds predicates to the selector. Several predicates, or repeated
// calls, are combined with And.
func (d Definition) Where(preds ...Predicate) Definition {
	d = d.clone()
	all := make([]Predicate, 0, len(preds)+1)
	switch cur := d.Selector.(type) {
	case nil:
	case And:
		all = append(all, cur.Predicates...)
	default:
		all = append(all, cur)
	}
	all = append(all, preds...)
	if len(all) == 1 {
		d.Selector = all[0]
	} else {
		d.Selector = And{Predicates: all}
	}
	return d
}

// Select restricts the returned attributes.
func (d Definition) Select(fields ...string) Definition {
	d = d.clone()
	d.Fields = slices.Clone(fields)
	return d
}

// Sort sets the result ordering.
func (d Definition) Sort(fields ...SortField) Definition {
	d = d.clone()
	d.SortBy = slices.Clone(fields)
	return d
}

// Include asks for relationships to be fetched alongside the primary
// documents.
func (d Definition) Include(names ...string) Definition {
	d = d.clone()
	d.Includes = append(d.Includes, names...)
	return d
}

// ReferencedByDocs selects files referenced by the given documents.
func (d Definition) ReferencedByDocs(refs ...ir.Ref) Definition {
	d = d.clone()
	d.ReferencedBy = slices.Clone(refs)
	return d
}

// Limit sets the page size.
func (d Definition) Limit(n int) Definition {
	d.PageLimit = n
	return d.clone()
}

// Skip sets the page offset.
func (d Definition) Skip(n int) Definition {
	d.PageSkip = n
	return d.clone()
}

// Bookmark sets the page cursor returned by a previous response.
func (d Definition) Bookmark(b string) Definition {
	d.PageBookmark = b
	return d.clone()
}

// Continue returns the definition of the page following resp: the
// response bookmark when there is one, the offset advanced past the
// returned documents otherwise.
func (d Definition) Continue(resp *Response) Definition {
	if resp == nil {
		return d.clone()
	}
	if resp.Bookmark != "" {
		return d.Bookmark(resp.Bookmark)
	}
	return d.Skip(d.PageSkip + len(resp.Data))
}

// IsContinuation reports whether d asks for a page after the first.
func (d Definition) IsContinuation() bool {
	return d.PageSkip > 0 || d.PageBookmark != ""
}

// WithoutPaging returns d with the page cursor cleared. Pages of one logical
// query share this form.
func (d Definition) WithoutPaging() Definition {
	d = d.clone()
	d.PageSkip = 0
	d.PageBookmark = ""
	return d
}

// Object returns the canonical object form of the definition.
func (d Definition) Object() ir.IRObject {
	obj := ir.IRObject{"doctype": ir.IRString(d.Doctype)}
	if d.ID != "" {
		obj["id"] = ir.IRString(d.ID)
	}
	if len(d.IDs) > 0 {
		obj["ids"] = stringArray(d.IDs)
	}
	if d.Selector != nil {
		obj["selector"] = d.Selector.Object()
	}
	if len(d.Fields) > 0 {
		obj["fields"] = stringArray(d.Fields)
	}
	if len(d.SortBy) > 0 {
		sort := make(ir.IRArray, len(d.SortBy))
		for i, s := range d.SortBy {
			dir := "asc"
			if s.Desc {
				dir = "desc"
			}
			sort[i] = ir.IRObject{s.Field: ir.IRString(dir)}
		}
		obj["sort"] = sort
	}
	if len(d.Includes) > 0 {
		obj["includes"] = stringArray(d.Includes)
	}
	if len(d.ReferencedBy) > 0 {
		refs := make(ir.IRArray, len(d.ReferencedBy))
		for i, r := range d.ReferencedBy {
			refs[i] = ir.IRObject{"type": ir.IRString(r.Type), "id": ir.IRString(r.ID)}
		}
		obj["referencedBy"] = refs
	}
	if d.PageLimit > 0 {
		obj["limit"] = ir.IRInt(d.PageLimit)
	}
	if d.PageSkip > 0 {
		obj["skip"] = ir.IRInt(d.PageSkip)
	}
	if d.PageBookmark != "" {
		obj["bookmark"] = ir.IRString(d.PageBookmark)
	}
	return obj
}

// Name returns the content-addressed name of the definition, ignoring the
// page cursor so that every page of a query lands in the same slot.
func (d Definition) Name() (string, error) {
	return ir.QueryID(d.WithoutPaging().Object())
}

// MarshalJSON emits the canonical object form.
func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Object())
}

func (d Definition) clone() Definition {
	d.IDs = slices.Clone(d.IDs)
	d.Fields = slices.Clone(d.Fields)
	d.SortBy = slices.Clone(d.SortBy)
	d.Includes = slices.Clone(d.Includes)
	d.ReferencedBy = slices.Clone(d.ReferencedBy)
	return d
}

func stringArray(ss []string) ir.IRArray {
	arr := make(ir.IRArray, len(ss))
	for i, s := range ss {
		arr[i] = ir.IRString(s)
	}
	return arr
}
