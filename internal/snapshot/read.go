package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
)

// ReadDocument returns one document. The boolean is false when the snapshot
// has no such document.
func (s *Store) ReadDocument(ctx context.Context, doctype, id string) (ir.Document, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE doctype = ? AND id = ?", doctype, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Document{}, false, nil
	}
	if err != nil {
		return ir.Document{}, false, fmt.Errorf("read document %s/%s: %w", doctype, id, err)
	}
	doc, err := unmarshalDocument(body)
	if err != nil {
		return ir.Document{}, false, fmt.Errorf("read document %s/%s: %w", doctype, id, err)
	}
	return doc, true, nil
}

// ReadAll returns every document of a doctype, ordered by id.
func (s *Store) ReadAll(ctx context.Context, doctype string) ([]ir.Document, error) {
	return s.Query(ctx, query.Q(doctype))
}

// Query runs a definition against the snapshot.
func (s *Store) Query(ctx context.Context, def query.Definition) ([]ir.Document, error) {
	stmt, params, err := s.compiler.Compile(def)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Doctype, err)
	}
	defer rows.Close()

	var docs []ir.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", def.Doctype, err)
		}
		doc, err := unmarshalDocument(body)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", def.Doctype, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Doctype, err)
	}
	return docs, nil
}

// Doctypes returns the stored doctypes in sorted order.
func (s *Store) Doctypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT doctype FROM documents ORDER BY doctype ASC COLLATE BINARY")
	if err != nil {
		return nil, fmt.Errorf("list doctypes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var dt string
		if err := rows.Scan(&dt); err != nil {
			return nil, fmt.Errorf("list doctypes: %w", err)
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}

func unmarshalDocument(body string) (ir.Document, error) {
	var doc ir.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return ir.Document{}, fmt.Errorf("unmarshal body: %w", err)
	}
	return doc, nil
}
