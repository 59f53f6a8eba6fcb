// Package store is the normalized document store.
//
// State is three independent tables under one lock: documents keyed by
// (type, id), named query states and named mutation states. The only write
// path is Dispatch with one of the Action records of this package, so every
// change is an explicit, serializable event. Reads return copies and never
// observe a half-applied action.
package store
