package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition is returned, wrapped, for malformed definitions.
var ErrInvalidDefinition = errors.New("invalid query definition")

// ErrInvalidMutation is returned, wrapped, for malformed mutations.
var ErrInvalidMutation = errors.New("invalid mutation")

// Validate checks a definition before it is sent. All problems are
// reported at once.
func Validate(d Definition) error {
	v := &validator{}

	if d.Doctype == "" {
		v.add("doctype is required")
	}

	modes := 0
	if d.ID != "" {
		modes++
	}
	if len(d.IDs) > 0 {
		modes++
	}
	if len(d.ReferencedBy) > 0 {
		modes++
	}
	if d.Selector != nil {
		modes++
	}
	if modes > 1 {
		v.add("id, ids, referencedBy and selector are mutually exclusive")
	}

	for i, id := range d.IDs {
		if id == "" {
			v.add("ids[%d] is empty", i)
		}
	}
	for i, ref := range d.ReferencedBy {
		if ref.Type == "" || ref.ID == "" {
			v.add("referencedBy[%d] needs a type and an id", i)
		}
	}
	if d.Selector != nil {
		v.predicate(d.Selector, "selector")
	}
	for i, f := range d.SortBy {
		if f.Field == "" {
			v.add("sort[%d] has no field", i)
		}
	}

	seen := make(map[string]bool, len(d.Includes))
	for _, name := range d.Includes {
		if name == "" {
			v.add("include name is empty")
			continue
		}
		if seen[name] {
			v.add("include %q listed twice", name)
		}
		seen[name] = true
	}

	if d.PageLimit < 0 {
		v.add("limit must not be negative")
	}
	if d.PageSkip < 0 {
		v.add("skip must not be negative")
	}
	if d.PageSkip > 0 && d.PageBookmark != "" {
		v.add("skip and bookmark are mutually exclusive")
	}

	return v.err(ErrInvalidDefinition)
}

// ValidateMutation checks that a mutation carries what its type needs.
func ValidateMutation(m Mutation) error {
	v := &validator{}

	if m.Document.Type == "" {
		v.add("document type is required")
	}

	switch m.Type {
	case CreateDocument:
		if m.Document.Rev != "" {
			v.add("a document to create must not carry a revision")
		}
	case UpdateDocument:
		if m.Document.ID == "" || m.Document.Rev == "" {
			v.add("a document to update needs an id and a revision")
		}
	case DeleteDocument:
		if m.Document.ID == "" {
			v.add("a document to delete needs an id")
		}
	case AddReferencesTo, RemoveReferencesTo, AddReferencedBy, RemoveReferencedBy:
		if m.Document.ID == "" {
			v.add("%s needs a document id", m.Type)
		}
		if len(m.References) == 0 {
			v.add("%s needs at least one reference", m.Type)
		}
	default:
		v.add("unknown mutation type %q", m.Type)
	}

	return v.err(ErrInvalidMutation)
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) predicate(p Predicate, path string) {
	switch pred := p.(type) {
	case Equals:
		if pred.Field == "" {
			v.add("%s: equals has no field", path)
		}
	case In:
		if pred.Field == "" {
			v.add("%s: in has no field", path)
		}
		if len(pred.Values) == 0 {
			v.add("%s: in on %q has no values", path, pred.Field)
		}
	case And:
		for i, sub := range pred.Predicates {
			v.predicate(sub, fmt.Sprintf("%s.and[%d]", path, i))
		}
	default:
		v.add("%s: unknown predicate %T", path, p)
	}
}

func (v *validator) err(sentinel error) error {
	if len(v.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", sentinel, strings.Join(v.problems, "; "))
}
