package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
)

// AnswerFunc answers the call-th operation (0-based) a Backend receives.
type AnswerFunc func(op query.Operation, call int) (*query.Response, error)

// Backend is a terminal link answering from a script and recording every
// operation it receives.
//
// Thread-safety: safe for concurrent use.
type Backend struct {
	link.NopHooks

	mu     sync.Mutex
	ops    []query.Operation
	answer AnswerFunc
}

// NewBackend creates a backend answering with fn.
func NewBackend(fn AnswerFunc) *Backend {
	return &Backend{answer: fn}
}

// NewPagedBackend answers the n-th call with pages[n]. Calls past the last
// page fail.
func NewPagedBackend(pages ...*query.Response) *Backend {
	return NewBackend(func(op query.Operation, call int) (*query.Response, error) {
		if call >= len(pages) {
			return nil, fmt.Errorf("unexpected call %d", call)
		}
		return pages[call], nil
	})
}

// Request records op and answers it. It never calls next.
func (b *Backend) Request(_ context.Context, op query.Operation, _ *query.Response, _ link.Next) (*query.Response, error) {
	b.mu.Lock()
	call := len(b.ops)
	b.ops = append(b.ops, op)
	b.mu.Unlock()
	return b.answer(op, call)
}

// Operations returns the operations received so far.
func (b *Backend) Operations() []query.Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]query.Operation(nil), b.ops...)
}

// Calls returns how many operations were received.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

// Mutations returns the mutations received so far.
func (b *Backend) Mutations() []query.Mutation {
	var out []query.Mutation
	for _, op := range b.Operations() {
		if m, ok := op.(query.Mutation); ok {
			out = append(out, m)
		}
	}
	return out
}

// EchoWrites answers writes the way the stack does: created documents get
// an id ("<prefix>-<call>") when they have none and a first revision,
// updated documents a bumped revision, deleted documents come back as is.
// Reference mutations answer with no data. Queries fail.
func EchoWrites(prefix string) AnswerFunc {
	return func(op query.Operation, call int) (*query.Response, error) {
		m, ok := op.(query.Mutation)
		if !ok {
			return nil, fmt.Errorf("unexpected query %v", op)
		}
		doc := m.Document.Clone()
		switch m.Type {
		case query.CreateDocument:
			if doc.ID == "" {
				doc.ID = fmt.Sprintf("%s-%d", prefix, call)
			}
			doc.Rev = "1-" + doc.ID
		case query.UpdateDocument:
			doc.Rev = fmt.Sprintf("%d-%s", call+2, doc.ID)
		case query.DeleteDocument:
		default:
			return &query.Response{Data: []ir.Document{}}, nil
		}
		return &query.Response{Data: []ir.Document{doc}}, nil
	}
}
