package snapshot

import (
	"context"
	"fmt"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/store"
)

// Seed loads snapshot documents into an in-memory store as a ReceiveData
// action. With no doctypes every stored doctype is loaded. Returns the
// number of documents loaded.
func (s *Store) Seed(ctx context.Context, st *store.Store, doctypes ...string) (int, error) {
	if len(doctypes) == 0 {
		all, err := s.Doctypes(ctx)
		if err != nil {
			return 0, fmt.Errorf("seed: %w", err)
		}
		doctypes = all
	}

	var docs []ir.Document
	for _, dt := range doctypes {
		batch, err := s.ReadAll(ctx, dt)
		if err != nil {
			return 0, fmt.Errorf("seed: %w", err)
		}
		docs = append(docs, batch...)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	st.Dispatch(store.ReceiveData{Documents: docs})
	return len(docs), nil
}

// Save writes every document of an in-memory store to the snapshot and
// returns the number of rows changed.
func (s *Store) Save(ctx context.Context, st *store.Store) (int, error) {
	var docs []ir.Document
	for _, dt := range st.Doctypes() {
		batch, err := st.All(dt)
		if err != nil {
			return 0, fmt.Errorf("save: %w", err)
		}
		docs = append(docs, batch...)
	}
	n, err := s.WriteDocuments(ctx, docs...)
	if err != nil {
		return 0, fmt.Errorf("save: %w", err)
	}
	return n, nil
}
