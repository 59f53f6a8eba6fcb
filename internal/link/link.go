// Package link composes request-processing stages into one pipeline.
//
// A Link sees every operation on its way to the backend and may transform
// it, transform the response, or answer without calling next. The last link
// of a chain is the terminal link: it performs the transport call and never
// calls next.
package link

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/doclink/internal/query"
)

var (
	// ErrEmptyChain is returned when a chain is built without links.
	ErrEmptyChain = errors.New("link chain has no links")

	// ErrNoTerminal is returned when the last link of a chain calls next.
	ErrNoTerminal = errors.New("link chain has no terminal link: last link called next")
)

// Next invokes the remainder of the chain.
type Next func(ctx context.Context, op query.Operation, prev *query.Response) (*query.Response, error)

// Handler is the request capability of a link.
type Handler func(ctx context.Context, op query.Operation, prev *query.Response, next Next) (*query.Response, error)

// Session is the view of the owning session a link receives on attach, so
// that it can issue side requests through the whole chain.
type Session interface {
	Execute(ctx context.Context, op query.Operation) (*query.Response, error)
	Logger() *slog.Logger
}

// Link is one stage of a chain.
//
// Links are tracked by identity, so implementations must be comparable;
// pointer receivers are the norm. Embed NopHooks for hooks a link does not
// need.
type Link interface {
	Request(ctx context.Context, op query.Operation, prev *query.Response, next Next) (*query.Response, error)

	// Attach is called once per session, before the first request.
	Attach(s Session)

	// OnLogin is called at most once per login cycle.
	OnLogin(ctx context.Context) error

	// Reset is called on logout. Links must drop any per-session state.
	Reset(ctx context.Context) error
}

// NopHooks implements the lifecycle hooks of Link as no-ops.
type NopHooks struct{}

func (NopHooks) Attach(Session)                {}
func (NopHooks) OnLogin(context.Context) error { return nil }
func (NopHooks) Reset(context.Context) error   { return nil }

// funcLink adapts a bare Handler.
type funcLink struct {
	NopHooks
	handle Handler
}

// Func wraps a bare handler into a Link with no-op hooks. Each call returns
// a distinct link.
func Func(h Handler) Link {
	return &funcLink{handle: h}
}

func (l *funcLink) Request(ctx context.Context, op query.Operation, prev *query.Response, next Next) (*query.Response, error) {
	return l.handle(ctx, op, prev, next)
}
