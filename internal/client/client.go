package client

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/doclink/internal/association"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/metadata"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/schema"
	"github.com/roach88/doclink/internal/store"
	"github.com/roach88/doclink/internal/transport"
)

// Authenticator is the session lifecycle collaborator.
// *transport.StackClient implements it.
type Authenticator interface {
	Login(ctx context.Context, creds *transport.Credentials) error
	Logout(ctx context.Context) error

	// SetHandlers installs the notification handlers and reports whether
	// it replaced handlers installed before.
	SetHandlers(h transport.Handlers) (replaced bool)
}

// Client is a session over a link chain and a normalized store.
type Client struct {
	mu        sync.RWMutex
	links     []link.Link
	exec      *link.Executor
	lifecycle *link.Lifecycle
	logged    bool
	revoked   bool

	schema   *schema.Schema
	identity metadata.Identity
	store    *store.Store
	hydrator *association.Hydrator
	auth     Authenticator
	names    NameGenerator
	now      func() time.Time
	logger   *slog.Logger
	events   *emitter
	plugins  *pluginRegistry

	warnCustomHandlers bool
}

// New creates a client. Every link is attached before New returns.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		names:              UUIDv7Generator{},
		now:                time.Now,
		logger:             slog.Default(),
		events:             newEmitter(),
		plugins:            newPluginRegistry(),
		warnCustomHandlers: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	exec, err := link.Chain(c.links...)
	if err != nil {
		return nil, configError(ErrCodeConfigInvalid, err, "build link chain")
	}
	c.exec = exec
	c.links = exec.Links()
	c.lifecycle = link.NewLifecycle(c.logger)

	if c.store == nil {
		c.store = store.New(store.WithLogger(c.logger), store.WithNow(c.now))
	}
	c.hydrator = association.NewHydrator(c.schema, c.store)

	if c.auth != nil {
		replaced := c.auth.SetHandlers(transport.Handlers{
			OnRevocationChange: c.HandleRevocationChange,
			OnTokenRefresh:     c.HandleTokenRefresh,
		})
		if replaced && c.warnCustomHandlers {
			c.logger.Warn("replacing custom session handlers of the authenticator; use WithWarningForCustomHandlers(false) to silence")
		}
	}

	c.lifecycle.Attach(c, c.links)
	return c, nil
}

// Execute sends op through the chain without recording anything in the
// store. Links use it for side requests.
func (c *Client) Execute(ctx context.Context, op query.Operation) (*query.Response, error) {
	c.mu.RLock()
	exec := c.exec
	c.mu.RUnlock()
	return exec.Execute(ctx, op)
}

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Store returns the normalized store.
func (c *Client) Store() *store.Store {
	return c.store
}

// Schema returns the schema, possibly nil.
func (c *Client) Schema() *schema.Schema {
	return c.schema
}

// Links returns the links in chain order.
func (c *Client) Links() []link.Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.links)
}

// SetLinks replaces the chain. Links already attached are not attached
// again; new links also run their login hook when the session is open.
func (c *Client) SetLinks(ctx context.Context, links ...link.Link) error {
	exec, err := link.Chain(links...)
	if err != nil {
		return configError(ErrCodeConfigInvalid, err, "build link chain")
	}

	c.mu.Lock()
	c.exec = exec
	c.links = exec.Links()
	logged := c.logged
	c.mu.Unlock()

	c.lifecycle.Attach(c, exec.Links())
	if logged {
		return c.lifecycle.Login(ctx, exec.Links())
	}
	return nil
}

// On subscribes fn to an event and returns the unsubscribe function.
func (c *Client) On(name EventName, fn func(Event)) func() {
	return c.events.on(name, fn)
}

// Login opens the session: the authenticator logs in, then every link runs
// its login hook once for this cycle. Events: beforeLogin, login.
func (c *Client) Login(ctx context.Context, creds *transport.Credentials) error {
	c.events.emit(Event{Name: EventBeforeLogin})

	links := c.Links()
	c.lifecycle.Attach(c, links)

	if c.auth != nil {
		if err := c.auth.Login(ctx, creds); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	c.mu.Lock()
	c.logged = true
	c.revoked = false
	c.mu.Unlock()

	if err := c.lifecycle.Login(ctx, links); err != nil {
		return err
	}

	c.logger.Info("logged in", "app", c.identity.Slug)
	c.events.emit(Event{Name: EventLogin})
	return nil
}

// Logout closes the session. Link resets run concurrently and are all
// awaited; failures, like an authenticator failure, are logged and never
// abort the teardown. The store is cleared. Logging out while logged out
// does nothing. Events: beforeLogout, logout.
func (c *Client) Logout(ctx context.Context) {
	c.mu.Lock()
	if !c.logged {
		c.mu.Unlock()
		c.logger.Warn("logout called while not logged in")
		return
	}
	c.logged = false
	c.mu.Unlock()

	c.events.emit(Event{Name: EventBeforeLogout})

	if c.auth != nil {
		if err := c.auth.Logout(ctx); err != nil {
			c.logger.Warn("authenticator logout failed", "error", err)
		}
	}
	if err := c.lifecycle.Reset(ctx, c.Links()); err != nil {
		c.logger.Debug("links reset with errors", "error", err)
	}
	c.store.Dispatch(store.ResetState{})

	c.logger.Info("logged out", "app", c.identity.Slug)
	c.events.emit(Event{Name: EventLogout})
}

// IsLogged reports whether the session is open.
func (c *Client) IsLogged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logged
}

// IsRevoked reports whether the backend refused the session.
func (c *Client) IsRevoked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revoked
}

// HandleRevocationChange records a revocation change and emits revoked or
// unrevoked.
func (c *Client) HandleRevocationChange(revoked bool) {
	c.mu.Lock()
	c.revoked = revoked
	c.mu.Unlock()

	if revoked {
		c.events.emit(Event{Name: EventRevoked})
	} else {
		c.events.emit(Event{Name: EventUnrevoked})
	}
}

// HandleTokenRefresh emits tokenRefreshed.
func (c *Client) HandleTokenRefresh(token string) {
	c.logger.Debug("token refreshed")
	c.events.emit(Event{Name: EventTokenRefreshed, Token: token})
}
