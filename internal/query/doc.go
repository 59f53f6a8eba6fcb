// Package query describes the operations sent through a link chain.
//
// An Operation is either a Definition (a declarative description of a set of
// documents) or a Mutation (a single write). Links treat operations as
// opaque beyond Kind(); only the terminal transport link and the normalized
// store look inside.
//
// Definitions are immutable values built with a fluent API:
//
//	def := query.Q("io.cozy.todos").
//		Where(query.Eq("done", ir.IRBool(false))).
//		Include("authors").
//		Limit(50)
package query
