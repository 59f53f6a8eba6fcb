package client

import (
	"context"
	"fmt"

	"github.com/roach88/doclink/internal/association"
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/schema"
	"github.com/roach88/doclink/internal/store"
)

// Query runs def through the chain and records it in the store under its
// name. InitQuery is dispatched before the request; the result or the
// error after it. Transport errors are returned unchanged.
//
// Relationships listed with Include are fetched after the primary request,
// one batched request per name, in order.
func (c *Client) Query(ctx context.Context, def query.Definition, opts ...CallOption) (*query.Response, error) {
	o := newCallOptions(opts)

	if err := query.Validate(def); err != nil {
		return nil, configError(ErrCodeQueryInvalid, err, "validate query on %s", def.Doctype)
	}
	rels, err := c.includedRelationships(def)
	if err != nil {
		return nil, err
	}

	name := o.name
	if name == "" {
		if name, err = def.Name(); err != nil {
			return nil, configError(ErrCodeQueryInvalid, err, "name query on %s", def.Doctype)
		}
	}

	c.store.Dispatch(store.NewInitQuery(name, def))

	resp, err := c.Execute(ctx, def)
	if err == nil {
		err = c.expandIncludes(ctx, rels, resp)
	}
	if err != nil {
		c.logger.Debug("query failed", "query", name, "doctype", def.Doctype, "error", err)
		c.store.Dispatch(store.NewReceiveQueryError(name, err))
		return nil, err
	}

	c.store.Dispatch(store.NewReceiveQueryResult(name, resp))
	return resp, nil
}

// includedRelationships resolves the Include names of def. An undeclared
// name fails before any request is sent.
func (c *Client) includedRelationships(def query.Definition) ([]schema.Relationship, error) {
	rels := make([]schema.Relationship, 0, len(def.Includes))
	for _, name := range def.Includes {
		rel, ok := c.schema.Relationship(def.Doctype, name)
		if !ok {
			return nil, configError(ErrCodeQueryInvalid, ErrUnknownRelationship, "include %q on %s", name, def.Doctype)
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// expandIncludes fetches the targets of each relationship for every
// primary document, appends them to resp.Included and sets each primary
// document's relationship to the refs that were found.
func (c *Client) expandIncludes(ctx context.Context, rels []schema.Relationship, resp *query.Response) error {
	if resp == nil || len(rels) == 0 {
		return nil
	}

	for _, rel := range rels {
		included := []ir.Document{}
		if def, ok := association.IncludeQuery(rel, resp.Data); ok {
			r, err := c.Execute(ctx, def)
			if err != nil {
				return fmt.Errorf("include %s: %w", rel.Name, err)
			}
			if r != nil {
				included = r.Data
			}
		}

		resp.Included = append(resp.Included, included...)
		for i := range resp.Data {
			resp.Data[i].SetRefs(rel.Name, association.Match(rel, resp.Data[i], included))
		}
	}
	return nil
}

// QueryAll runs def page after page and returns every document in order.
// Pages are requested strictly one after the other, each continuing from
// the previous response, until a response announces no next page. Every
// page is recorded under the same query name.
//
// The loop is unbounded unless WithMaxPages is given; it stops when ctx is
// done. An error on any page ends the loop and is returned.
func (c *Client) QueryAll(ctx context.Context, def query.Definition, opts ...CallOption) ([]ir.Document, error) {
	o := newCallOptions(opts)
	if o.name == "" {
		name, err := def.Name()
		if err != nil {
			return nil, configError(ErrCodeQueryInvalid, err, "name query on %s", def.Doctype)
		}
		opts = append(opts, WithName(name))
	}

	docs := []ir.Document{}
	page := def
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("query all %s: %w", def.Doctype, err)
		}
		if o.maxPages > 0 && n > o.maxPages {
			return nil, fmt.Errorf("query all %s: %w: more than %d pages", def.Doctype, ErrMaxPagesExceeded, o.maxPages)
		}

		resp, err := c.Query(ctx, page, opts...)
		if err != nil {
			return nil, err
		}
		docs = append(docs, resp.Data...)
		if !resp.Next {
			return docs, nil
		}

		c.logger.Debug("fetching next page", "doctype", def.Doctype, "page", n+1, "fetched", len(docs))
		page = page.Continue(resp)
	}
}
