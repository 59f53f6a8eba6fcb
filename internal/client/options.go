package client

import (
	"log/slog"
	"time"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/metadata"
	"github.com/roach88/doclink/internal/schema"
	"github.com/roach88/doclink/internal/store"
)

// Option configures a Client.
type Option func(*Client)

// WithLinks sets the link chain. The last link must be terminal.
func WithLinks(links ...link.Link) Option {
	return func(c *Client) {
		c.links = links
	}
}

// WithSchema sets the schema used for hydration, includes and doctype
// versions.
func WithSchema(s *schema.Schema) Option {
	return func(c *Client) {
		c.schema = s
	}
}

// WithIdentity sets the application identity written into cozyMetadata.
func WithIdentity(id metadata.Identity) Option {
	return func(c *Client) {
		c.identity = id
	}
}

// WithStore sets the store, for instance one seeded from a snapshot.
func WithStore(s *store.Store) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock sets the wall clock used for metadata dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithNameGenerator sets the generator naming anonymous mutations.
//
// Default: UUIDv7Generator.
func WithNameGenerator(g NameGenerator) Option {
	return func(c *Client) {
		c.names = g
	}
}

// WithAuthenticator sets the session lifecycle collaborator. The client
// installs its revocation and token refresh handlers on it.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) {
		c.auth = a
	}
}

// WithWarningForCustomHandlers controls the warning logged when the
// authenticator already had handlers that the client replaces.
//
// Default: true.
func WithWarningForCustomHandlers(warn bool) Option {
	return func(c *Client) {
		c.warnCustomHandlers = warn
	}
}

// CallOption configures a single query, mutation or read.
type CallOption func(*callOptions)

type callOptions struct {
	name       string
	hydrated   bool
	maxPages   int
	references map[string][]ir.Ref
}

func newCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithName sets the name the query or mutation is recorded under.
//
// Default: the definition's content hash for queries, a generated name for
// mutations.
func WithName(as string) CallOption {
	return func(o *callOptions) {
		o.name = as
	}
}

// WithHydrated makes GetQueryFromState hydrate the documents it returns.
func WithHydrated() CallOption {
	return func(o *callOptions) {
		o.hydrated = true
	}
}

// WithMaxPages bounds QueryAll. Zero means unbounded.
func WithMaxPages(n int) CallOption {
	return func(o *callOptions) {
		o.maxPages = n
	}
}

// WithReferences sets the relationship changeset of a save: for each
// relationship name, the refs to link the saved document to once written.
func WithReferences(refs map[string][]ir.Ref) CallOption {
	return func(o *callOptions) {
		o.references = refs
	}
}
