package snapshot

import (
	"context"
	"log/slog"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
)

// LinkOption configures the write-through link.
type LinkOption func(*writeThrough)

// WithOfflineFallback answers a failed query from the snapshot when the
// snapshot holds matching documents. The original error is logged.
func WithOfflineFallback() LinkOption {
	return func(l *writeThrough) {
		l.fallback = true
	}
}

// WithLinkLogger sets the link logger. Without it the session logger is
// used once attached.
func WithLinkLogger(logger *slog.Logger) LinkOption {
	return func(l *writeThrough) {
		l.logger = logger
	}
}

// writeThrough persists every successful response to the snapshot.
type writeThrough struct {
	store    *Store
	fallback bool
	logger   *slog.Logger
}

// Link returns a non-terminal link that records query and mutation results
// in s. Snapshot write failures are logged and never fail the request.
// Reset clears the snapshot.
func Link(s *Store, opts ...LinkOption) link.Link {
	l := &writeThrough{store: s}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *writeThrough) Attach(s link.Session) {
	if l.logger == nil {
		l.logger = s.Logger()
	}
}

func (l *writeThrough) OnLogin(context.Context) error { return nil }

func (l *writeThrough) Reset(ctx context.Context) error {
	return l.store.Clear(ctx)
}

func (l *writeThrough) Request(ctx context.Context, op query.Operation, prev *query.Response, next link.Next) (*query.Response, error) {
	resp, err := next(ctx, op, prev)

	switch o := op.(type) {
	case query.Definition:
		if err != nil {
			if l.fallback {
				if local, ok := l.answer(ctx, o, err); ok {
					return local, nil
				}
			}
			return nil, err
		}
		l.write(ctx, resp.Data, resp.Included)
	case query.Mutation:
		if err != nil {
			return nil, err
		}
		if o.Type == query.DeleteDocument {
			if _, derr := l.store.DeleteDocuments(ctx, o.Document.Ref()); derr != nil {
				l.log().Warn("snapshot delete failed", "ref", o.Document.Ref().Key(), "error", derr)
			}
		} else {
			l.write(ctx, resp.Data)
		}
	}
	return resp, err
}

func (l *writeThrough) answer(ctx context.Context, def query.Definition, cause error) (*query.Response, bool) {
	docs, err := l.store.Query(ctx, def)
	if err != nil || len(docs) == 0 {
		return nil, false
	}
	l.log().Warn("answering query from snapshot",
		"doctype", def.Doctype,
		"documents", len(docs),
		"error", cause)
	return &query.Response{Data: docs}, true
}

func (l *writeThrough) write(ctx context.Context, groups ...[]ir.Document) {
	var docs []ir.Document
	for _, g := range groups {
		for _, d := range g {
			if d.Type != "" && d.ID != "" {
				docs = append(docs, d)
			}
		}
	}
	if len(docs) == 0 {
		return
	}
	if _, err := l.store.WriteDocuments(ctx, docs...); err != nil {
		l.log().Warn("snapshot write failed", "documents", len(docs), "error", err)
	}
}

func (l *writeThrough) log() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}
