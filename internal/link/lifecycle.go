package link

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Lifecycle tracks which links were attached to a session and which already
// ran their login hook in the current login cycle.
type Lifecycle struct {
	mu       sync.Mutex
	attached map[Link]struct{}
	loggedIn map[Link]struct{}
	logger   *slog.Logger
}

// NewLifecycle creates an empty tracker.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		attached: make(map[Link]struct{}),
		loggedIn: make(map[Link]struct{}),
		logger:   logger,
	}
}

// Attach calls Attach on every link not yet attached, in list order, and
// returns how many were newly attached.
func (lc *Lifecycle) Attach(s Session, links []Link) int {
	lc.mu.Lock()
	pending := make([]Link, 0, len(links))
	for _, l := range links {
		if _, ok := lc.attached[l]; ok {
			continue
		}
		lc.attached[l] = struct{}{}
		pending = append(pending, l)
	}
	lc.mu.Unlock()

	for _, l := range pending {
		l.Attach(s)
	}
	return len(pending)
}

// Login runs OnLogin, in list order, on every link that has not run it
// since the last Reset. The first failure stops the sequence; the failing
// link is not marked and will be retried on the next login.
func (lc *Lifecycle) Login(ctx context.Context, links []Link) error {
	for _, l := range links {
		lc.mu.Lock()
		_, done := lc.loggedIn[l]
		lc.mu.Unlock()
		if done {
			continue
		}

		if err := l.OnLogin(ctx); err != nil {
			return fmt.Errorf("link login: %w", err)
		}

		lc.mu.Lock()
		lc.loggedIn[l] = struct{}{}
		lc.mu.Unlock()
	}
	return nil
}

// Reset runs every link's Reset concurrently and waits for all of them.
// A failing or panicking reset does not prevent the others; failures are
// logged and returned joined.
func (lc *Lifecycle) Reset(ctx context.Context, links []Link) error {
	lc.mu.Lock()
	clear(lc.loggedIn)
	lc.mu.Unlock()

	p := pool.New().WithErrors().WithContext(ctx)
	for i, l := range links {
		p.Go(func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("reset panicked: %v", r)
				}
				if err != nil {
					lc.logger.Warn("link reset failed", "link", i, "error", err)
					err = fmt.Errorf("link %d reset: %w", i, err)
				}
			}()
			return l.Reset(ctx)
		})
	}
	return p.Wait()
}

// Attached reports whether l was attached.
func (lc *Lifecycle) Attached(l Link) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	_, ok := lc.attached[l]
	return ok
}
