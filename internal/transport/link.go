package transport

import (
	"context"

	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
)

// stackLink is the terminal link sending operations to a StackClient.
type stackLink struct {
	link.NopHooks
	client *StackClient
}

// Link returns the terminal link of a chain backed by c. It never calls
// next.
func Link(c *StackClient) link.Link {
	return &stackLink{client: c}
}

func (l *stackLink) Request(ctx context.Context, op query.Operation, _ *query.Response, _ link.Next) (*query.Response, error) {
	return l.client.Send(ctx, op)
}
