package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/doclink/internal/ir"
)

// ErrMissingIdentity is returned for documents without a doctype or id.
var ErrMissingIdentity = errors.New("document has no doctype or id")

// WriteDocuments upserts documents in one transaction and returns how many
// rows changed. A document whose content hash matches the stored row is
// skipped.
func (s *Store) WriteDocuments(ctx context.Context, docs ...ir.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write documents: begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM documents").Scan(&seq); err != nil {
		return 0, fmt.Errorf("write documents: read seq: %w", err)
	}

	written := 0
	for _, doc := range docs {
		if doc.Type == "" || doc.ID == "" {
			return 0, fmt.Errorf("write documents: %w", ErrMissingIdentity)
		}
		body, hash, err := marshalDocument(doc)
		if err != nil {
			return 0, fmt.Errorf("write documents: %s: %w", doc.Ref().Key(), err)
		}
		seq++
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (doctype, id, rev, body, hash, seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(doctype, id) DO UPDATE SET
				rev = excluded.rev,
				body = excluded.body,
				hash = excluded.hash,
				seq = excluded.seq
			WHERE documents.hash <> excluded.hash
		`, doc.Type, doc.ID, doc.Rev, body, hash, seq)
		if err != nil {
			return 0, fmt.Errorf("write documents: %s: %w", doc.Ref().Key(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("write documents: %w", err)
		}
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write documents: commit: %w", err)
	}
	return written, nil
}

// DeleteDocuments removes documents by reference and returns how many rows
// were removed. Unknown references are ignored.
func (s *Store) DeleteDocuments(ctx context.Context, refs ...ir.Ref) (int, error) {
	removed := 0
	for _, ref := range refs {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM documents WHERE doctype = ? AND id = ?", ref.Type, ref.ID)
		if err != nil {
			return removed, fmt.Errorf("delete document %s: %w", ref.Key(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("delete document %s: %w", ref.Key(), err)
		}
		removed += int(n)
	}
	return removed, nil
}

// Clear removes every document.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	return nil
}

// marshalDocument returns the canonical body and content hash of doc.
func marshalDocument(doc ir.Document) (string, string, error) {
	body, err := ir.MarshalCanonical(doc.Object())
	if err != nil {
		return "", "", fmt.Errorf("marshal body: %w", err)
	}
	hash, err := ir.DocumentHash(doc)
	if err != nil {
		return "", "", err
	}
	return string(body), hash, nil
}
