package client

import (
	"time"

	"github.com/roach88/doclink/internal/association"
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/store"
)

// QueryResult is a query state with its documents.
type QueryResult struct {
	Name       string
	Status     store.Status
	Definition query.Definition
	Doctype    string
	HasMore    bool
	FetchCount int
	LastUpdate time.Time
	LastError  error

	// Documents are the loaded documents of the query, in id order.
	Documents []ir.Document

	// Hydrated holds the same documents hydrated, with WithHydrated.
	Hydrated []*association.HydratedDocument
}

// GetQueryFromState returns the named query as currently stored. An
// unknown name, like any read failure, yields a zero QueryResult. Stored
// ids are never modified by the read.
func (c *Client) GetQueryFromState(name string, opts ...CallOption) (res QueryResult) {
	o := newCallOptions(opts)
	defer func() {
		if r := recover(); r != nil {
			if c != nil && c.logger != nil {
				c.logger.Warn("query read failed", "query", name, "panic", r)
			}
			res = QueryResult{}
		}
	}()

	if c == nil || c.store == nil {
		return QueryResult{}
	}
	q, err := c.store.Query(name)
	if err != nil || q == nil {
		return QueryResult{}
	}

	res = QueryResult{
		Name:       q.ID,
		Status:     q.Status,
		Definition: q.Definition,
		Doctype:    q.Doctype,
		HasMore:    q.HasMore,
		FetchCount: q.FetchCount,
		LastUpdate: q.LastUpdate,
		LastError:  q.LastError,
		Documents:  []ir.Document{},
	}

	loaded, err := c.store.Documents(q.Doctype, q.IDs)
	if err != nil {
		return res
	}
	present := make([]*ir.Document, 0, len(loaded))
	for _, doc := range loaded {
		if doc != nil {
			present = append(present, doc)
			res.Documents = append(res.Documents, *doc)
		}
	}
	if o.hydrated {
		res.Hydrated = c.hydrator.HydrateDocuments(q.Doctype, present, name)
	}
	return res
}

// GetDocumentFromState returns a copy of a stored document. It returns nil
// when the document is not loaded and on any read failure: reads must stay
// safe to poll at any time.
func (c *Client) GetDocumentFromState(doctype, id string) (doc *ir.Document) {
	defer func() {
		if r := recover(); r != nil {
			if c != nil && c.logger != nil {
				c.logger.Warn("document read failed", "type", doctype, "id", id, "panic", r)
			}
			doc = nil
		}
	}()

	if c == nil || c.store == nil {
		return nil
	}
	doc, err := c.store.Document(doctype, id)
	if err != nil {
		return nil
	}
	return doc
}

// SetData merges already shaped documents into the store, outside any
// query.
func (c *Client) SetData(docs ...ir.Document) {
	c.store.Dispatch(store.ReceiveData{Documents: docs})
}

// HydrateDocument hydrates doc against the current store.
func (c *Client) HydrateDocument(doc ir.Document) *association.HydratedDocument {
	return c.hydrator.HydrateDocument(doc)
}

// HydrateDocuments hydrates docs of doctype. Nil entries stay nil.
func (c *Client) HydrateDocuments(doctype string, docs []*ir.Document, queryName string) []*association.HydratedDocument {
	return c.hydrator.HydrateDocuments(doctype, docs, queryName)
}

// MakeNewDocument returns an empty hydrated document of doctype.
func (c *Client) MakeNewDocument(doctype string) *association.HydratedDocument {
	return c.hydrator.MakeNewDocument(doctype)
}
