package link

import (
	"context"
	"slices"

	"github.com/roach88/doclink/internal/query"
)

// Executor runs operations through a composed chain.
type Executor struct {
	links []Link
	run   Next
}

// Chain composes links right to left: the first link is the outermost and
// sees every operation first, the last link is the terminal one.
func Chain(links ...Link) (*Executor, error) {
	if len(links) == 0 {
		return nil, ErrEmptyChain
	}

	next := Next(func(context.Context, query.Operation, *query.Response) (*query.Response, error) {
		return nil, ErrNoTerminal
	})
	for i := len(links) - 1; i >= 0; i-- {
		l, rest := links[i], next
		next = func(ctx context.Context, op query.Operation, prev *query.Response) (*query.Response, error) {
			return l.Request(ctx, op, prev, rest)
		}
	}

	return &Executor{links: slices.Clone(links), run: next}, nil
}

// Execute sends op through the chain.
func (e *Executor) Execute(ctx context.Context, op query.Operation) (*query.Response, error) {
	return e.run(ctx, op, nil)
}

// Links returns the links in chain order.
func (e *Executor) Links() []Link {
	return slices.Clone(e.links)
}
