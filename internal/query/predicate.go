package query

import "github.com/roach88/doclink/internal/ir"

// Predicate is a filter condition over document attributes.
//
// This is a sealed interface. The predicate set is the fragment shared by
// the remote Mango selectors and the local SQL snapshot compiler:
//   - Equals: field = value
//   - In: field is one of values
//   - And: all predicates hold
type Predicate interface {
	predicateNode()

	// Object returns the Mango selector form of the predicate.
	Object() ir.IRObject
}

// Equals matches documents whose attribute equals a literal value.
// Field may be a dotted path into nested objects ("metadata.state").
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// Object returns {field: {"$eq": value}}.
func (p Equals) Object() ir.IRObject {
	return ir.IRObject{p.Field: ir.IRObject{"$eq": valueOrNull(p.Value)}}
}

// In matches documents whose attribute is one of the listed values.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// Object returns {field: {"$in": [values]}}.
func (p In) Object() ir.IRObject {
	vals := make(ir.IRArray, len(p.Values))
	for i, v := range p.Values {
		vals[i] = valueOrNull(v)
	}
	return ir.IRObject{p.Field: ir.IRObject{"$in": vals}}
}

// And matches documents satisfying every predicate.
// An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Object returns {"$and": [...]}.
func (p And) Object() ir.IRObject {
	parts := make(ir.IRArray, len(p.Predicates))
	for i, sub := range p.Predicates {
		parts[i] = sub.Object()
	}
	return ir.IRObject{"$and": parts}
}

// Eq is a shorthand for Equals.
func Eq(field string, value ir.IRValue) Predicate {
	return Equals{Field: field, Value: value}
}

// OneOf is a shorthand for In.
func OneOf(field string, values ...ir.IRValue) Predicate {
	return In{Field: field, Values: values}
}

func valueOrNull(v ir.IRValue) ir.IRValue {
	if v == nil {
		return ir.IRNull{}
	}
	return v
}
