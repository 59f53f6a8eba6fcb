package store

import (
	"slices"
	"time"

	"github.com/roach88/doclink/internal/query"
)

// Status is the fetch status of a query or mutation.
type Status string

const (
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// QueryState is the state of one named query. There is no terminal state:
// a query may be initialized again at any time.
type QueryState struct {
	ID         string
	Definition query.Definition
	Doctype    string
	Status     Status
	IDs        []string
	LastUpdate time.Time
	LastError  error
	HasMore    bool
	Bookmark   string
	FetchCount int
}

func (q *QueryState) clone() *QueryState {
	out := *q
	out.IDs = slices.Clone(q.IDs)
	return &out
}

// MutationState is the state of one named mutation, which may cover a batch
// of underlying writes.
type MutationState struct {
	ID         string
	Mutation   query.Mutation
	Status     Status
	LastUpdate time.Time
	LastError  error
	Response   *query.Response
	Context    MutationContext
}

func (m *MutationState) clone() *MutationState {
	out := *m
	return &out
}
