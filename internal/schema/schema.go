// Package schema describes doctypes and their relationships.
//
// A schema is static for the lifetime of a session. It is consumed by the
// hydrator (which association kind to build for a relationship), by the save
// planner (default doctype version) and by include expansion.
package schema

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue/token"
)

// Kind is the arity and resolution strategy of a relationship.
type Kind string

const (
	// HasOne points at a single document.
	HasOne Kind = "has-one"

	// HasMany points at several documents; refs live on the owner.
	HasMany Kind = "has-many"

	// HasManyFiles points at files; refs live on the files, in their
	// referenced_by relationship.
	HasManyFiles Kind = "has-many-files"
)

// ParseKind maps a schema spelling to a Kind. The "<doctype>:has-many" form
// used for file relationships is accepted as HasManyFiles. The in-place
// has-one form, which keeps the id in an attribute, is rejected.
func ParseKind(s string) (Kind, error) {
	switch s {
	case string(HasOne):
		return HasOne, nil
	case "has-one-in-place":
		return "", fmt.Errorf("relationship type %q is not supported", s)
	case string(HasMany):
		return HasMany, nil
	case string(HasManyFiles), "io.cozy.files:has-many":
		return HasManyFiles, nil
	default:
		return "", fmt.Errorf("unknown relationship type %q", s)
	}
}

// Relationship declares one relationship of a doctype.
type Relationship struct {
	Name    string
	Doctype string
	Kind    Kind
}

// Doctype declares one document type.
type Doctype struct {
	// Name is the short alias used by applications ("todos").
	Name           string
	Doctype        string
	DoctypeVersion int
	Relationships  []Relationship
}

// Relationship returns a declared relationship by name.
func (d Doctype) Relationship(name string) (Relationship, bool) {
	for _, r := range d.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// Schema is an immutable set of doctype declarations.
type Schema struct {
	doctypes []Doctype
	byType   map[string]int
	byName   map[string]int
}

// Error is a schema validation error, with the source position when the
// schema came from a CUE file.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// New validates declarations and builds a schema. Relationships are kept
// sorted by name.
func New(doctypes ...Doctype) (*Schema, error) {
	s := &Schema{
		byType: make(map[string]int, len(doctypes)),
		byName: make(map[string]int, len(doctypes)),
	}

	for _, d := range doctypes {
		field := "doctypes." + d.Name
		if d.Name == "" {
			field = "doctypes." + d.Doctype
		}
		if d.Doctype == "" {
			return nil, &Error{Field: field, Message: "doctype is required"}
		}
		if !strings.Contains(d.Doctype, ".") {
			return nil, &Error{Field: field, Message: fmt.Sprintf("doctype %q is not a reverse domain name", d.Doctype)}
		}
		if _, dup := s.byType[d.Doctype]; dup {
			return nil, &Error{Field: field, Message: fmt.Sprintf("doctype %q declared twice", d.Doctype)}
		}
		if d.Name != "" {
			if _, dup := s.byName[d.Name]; dup {
				return nil, &Error{Field: field, Message: fmt.Sprintf("name %q declared twice", d.Name)}
			}
		}
		if d.DoctypeVersion < 0 {
			return nil, &Error{Field: field + ".doctypeVersion", Message: "must not be negative"}
		}

		d.Relationships = slices.Clone(d.Relationships)
		slices.SortFunc(d.Relationships, func(a, b Relationship) int {
			return strings.Compare(a.Name, b.Name)
		})
		for i, r := range d.Relationships {
			rfield := field + ".relationships." + r.Name
			switch {
			case r.Name == "":
				return nil, &Error{Field: field + ".relationships", Message: "relationship name is required"}
			case i > 0 && d.Relationships[i-1].Name == r.Name:
				return nil, &Error{Field: rfield, Message: "declared twice"}
			case r.Doctype == "":
				return nil, &Error{Field: rfield, Message: "target doctype is required"}
			}
			kind, err := ParseKind(string(r.Kind))
			if err != nil {
				return nil, &Error{Field: rfield, Message: err.Error()}
			}
			d.Relationships[i].Kind = kind
		}

		s.byType[d.Doctype] = len(s.doctypes)
		if d.Name != "" {
			s.byName[d.Name] = len(s.doctypes)
		}
		s.doctypes = append(s.doctypes, d)
	}

	return s, nil
}

// MustNew is like New but panics on error.
// Use only in tests or for literal schemas known to be valid.
func MustNew(doctypes ...Doctype) *Schema {
	s, err := New(doctypes...)
	if err != nil {
		panic(err)
	}
	return s
}

// ByDoctype returns the declaration of a doctype.
func (s *Schema) ByDoctype(doctype string) (Doctype, bool) {
	if s == nil {
		return Doctype{}, false
	}
	i, ok := s.byType[doctype]
	if !ok {
		return Doctype{}, false
	}
	return s.doctypes[i], true
}

// ByName returns the declaration registered under an alias.
func (s *Schema) ByName(name string) (Doctype, bool) {
	if s == nil {
		return Doctype{}, false
	}
	i, ok := s.byName[name]
	if !ok {
		return Doctype{}, false
	}
	return s.doctypes[i], true
}

// Relationship returns a relationship of a doctype.
func (s *Schema) Relationship(doctype, name string) (Relationship, bool) {
	d, ok := s.ByDoctype(doctype)
	if !ok {
		return Relationship{}, false
	}
	return d.Relationship(name)
}

// Relationships returns the relationships of a doctype sorted by name, or
// nil for an undeclared doctype.
func (s *Schema) Relationships(doctype string) []Relationship {
	d, ok := s.ByDoctype(doctype)
	if !ok {
		return nil
	}
	return slices.Clone(d.Relationships)
}

// DoctypeVersion returns the declared version of a doctype, 0 when unknown.
func (s *Schema) DoctypeVersion(doctype string) int {
	d, _ := s.ByDoctype(doctype)
	return d.DoctypeVersion
}

// Doctypes returns every declaration in declaration order.
func (s *Schema) Doctypes() []Doctype {
	if s == nil {
		return nil
	}
	return slices.Clone(s.doctypes)
}
