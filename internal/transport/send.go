package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
)

// Send performs op against the stack.
func (c *StackClient) Send(ctx context.Context, op query.Operation) (*query.Response, error) {
	switch o := op.(type) {
	case query.Definition:
		return c.sendQuery(ctx, o)
	case query.Mutation:
		return c.sendMutation(ctx, o)
	default:
		return nil, fmt.Errorf("send: unsupported operation %T", op)
	}
}

func dataPath(doctype string, parts ...string) string {
	p := "/data/" + url.PathEscape(doctype) + "/"
	for i, part := range parts {
		if i > 0 {
			p += "/"
		}
		p += part
	}
	return p
}

func (c *StackClient) sendQuery(ctx context.Context, d query.Definition) (*query.Response, error) {
	switch {
	case d.ID != "":
		return c.getDocument(ctx, d)
	case len(d.IDs) > 0:
		return c.allDocs(ctx, d)
	case len(d.ReferencedBy) > 0:
		return c.referencedFiles(ctx, d)
	case d.Selector != nil || len(d.SortBy) > 0 || len(d.Fields) > 0:
		return c.find(ctx, d)
	default:
		return c.normalDocs(ctx, d)
	}
}

func (c *StackClient) getDocument(ctx context.Context, d query.Definition) (*query.Response, error) {
	var doc ir.Document
	if err := c.fetch(ctx, http.MethodGet, dataPath(d.Doctype, url.PathEscape(d.ID)), nil, &doc); err != nil {
		return nil, err
	}
	return &query.Response{Data: []ir.Document{typed(doc, d.Doctype)}}, nil
}

type allDocsResponse struct {
	Rows []struct {
		ID    string       `json:"id"`
		Doc   *ir.Document `json:"doc"`
		Error string       `json:"error"`
	} `json:"rows"`
}

// allDocs fetches a fixed set of ids. Rows the stack reports as missing are
// left out of the response.
func (c *StackClient) allDocs(ctx context.Context, d query.Definition) (*query.Response, error) {
	var out allDocsResponse
	body := map[string]any{"keys": d.IDs}
	if err := c.fetch(ctx, http.MethodPost, dataPath(d.Doctype, "_all_docs")+"?include_docs=true", body, &out); err != nil {
		return nil, err
	}

	resp := &query.Response{Data: []ir.Document{}}
	for _, row := range out.Rows {
		if row.Error != "" || row.Doc == nil {
			continue
		}
		resp.Data = append(resp.Data, typed(*row.Doc, d.Doctype))
	}
	return resp, nil
}

type findResponse struct {
	Docs     []ir.Document `json:"docs"`
	Next     bool          `json:"next"`
	Bookmark string        `json:"bookmark"`
}

func (c *StackClient) find(ctx context.Context, d query.Definition) (*query.Response, error) {
	body := map[string]any{}
	if d.Selector != nil {
		body["selector"] = d.Selector.Object()
	} else {
		body["selector"] = ir.IRObject{}
	}
	if len(d.Fields) > 0 {
		body["fields"] = d.Fields
	}
	if len(d.SortBy) > 0 {
		body["sort"] = d.Object()["sort"]
	}
	if d.PageLimit > 0 {
		body["limit"] = d.PageLimit
	}
	if d.PageSkip > 0 {
		body["skip"] = d.PageSkip
	}
	if d.PageBookmark != "" {
		body["bookmark"] = d.PageBookmark
	}

	var out findResponse
	if err := c.fetch(ctx, http.MethodPost, dataPath(d.Doctype, "_find"), body, &out); err != nil {
		return nil, err
	}

	resp := &query.Response{Data: make([]ir.Document, 0, len(out.Docs)), Next: out.Next}
	if out.Next {
		resp.Bookmark = out.Bookmark
	}
	for _, doc := range out.Docs {
		resp.Data = append(resp.Data, typed(doc, d.Doctype))
	}
	return resp, nil
}

type normalDocsResponse struct {
	Rows      []ir.Document `json:"rows"`
	TotalRows int           `json:"total_rows"`
}

// normalDocs lists a doctype without a selector. There are more pages while
// the rows seen so far are fewer than the total, so pages advance by skip.
func (c *StackClient) normalDocs(ctx context.Context, d query.Definition) (*query.Response, error) {
	params := url.Values{}
	if d.PageLimit > 0 {
		params.Set("limit", strconv.Itoa(d.PageLimit))
	}
	if d.PageSkip > 0 {
		params.Set("skip", strconv.Itoa(d.PageSkip))
	}
	if d.PageBookmark != "" {
		params.Set("bookmark", d.PageBookmark)
	}
	path := dataPath(d.Doctype, "_normal_docs")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out normalDocsResponse
	if err := c.fetch(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	resp := &query.Response{
		Data: make([]ir.Document, 0, len(out.Rows)),
		Next: d.PageSkip+len(out.Rows) < out.TotalRows,
	}
	for _, doc := range out.Rows {
		resp.Data = append(resp.Data, typed(doc, d.Doctype))
	}
	return resp, nil
}

// referencedFiles fetches the files referenced by each document of
// d.ReferencedBy, one request per document, deduplicated by id.
func (c *StackClient) referencedFiles(ctx context.Context, d query.Definition) (*query.Response, error) {
	resp := &query.Response{Data: []ir.Document{}}
	seen := map[string]bool{}
	for _, ref := range d.ReferencedBy {
		path := dataPath(ref.Type, url.PathEscape(ref.ID), "relationships", "references") + "?include=files"
		var out jsonAPIList
		if err := c.fetch(ctx, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		docs, err := out.documents(d.Doctype)
		if err != nil {
			return nil, fmt.Errorf("decode references of %s: %w", ref.Key(), err)
		}
		for _, doc := range docs {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			resp.Data = append(resp.Data, doc)
		}
		if out.Links.Next != "" {
			resp.Next = true
		}
	}
	return resp, nil
}

type writeResponse struct {
	ID   string       `json:"id"`
	Rev  string       `json:"rev"`
	Data *ir.Document `json:"data"`
}

func (c *StackClient) sendMutation(ctx context.Context, m query.Mutation) (*query.Response, error) {
	doc := m.Document
	switch m.Type {
	case query.CreateDocument:
		path := dataPath(doc.Type)
		if doc.ID != "" {
			path = dataPath(doc.Type, url.PathEscape(doc.ID))
			return c.write(ctx, http.MethodPut, path, doc)
		}
		return c.write(ctx, http.MethodPost, path, doc)

	case query.UpdateDocument:
		return c.write(ctx, http.MethodPut, dataPath(doc.Type, url.PathEscape(doc.ID)), doc)

	case query.DeleteDocument:
		path := dataPath(doc.Type, url.PathEscape(doc.ID)) + "?rev=" + url.QueryEscape(doc.Rev)
		var out writeResponse
		if err := c.fetch(ctx, http.MethodDelete, path, nil, &out); err != nil {
			return nil, err
		}
		deleted := doc.Clone()
		if out.Rev != "" {
			deleted.Rev = out.Rev
		}
		return &query.Response{Data: []ir.Document{deleted}}, nil

	case query.AddReferencedBy, query.RemoveReferencedBy:
		method := http.MethodPost
		if m.Type == query.RemoveReferencedBy {
			method = http.MethodDelete
		}
		path := "/files/" + url.PathEscape(doc.ID) + "/relationships/referenced_by"
		if err := c.fetch(ctx, method, path, jsonAPIRefs(m.References), nil); err != nil {
			return nil, err
		}
		return &query.Response{Data: []ir.Document{applyReferencedBy(doc, m)}}, nil

	case query.AddReferencesTo, query.RemoveReferencesTo:
		method := http.MethodPost
		if m.Type == query.RemoveReferencesTo {
			method = http.MethodDelete
		}
		path := dataPath(doc.Type, url.PathEscape(doc.ID), "relationships", "references")
		if err := c.fetch(ctx, method, path, jsonAPIRefs(m.References), nil); err != nil {
			return nil, err
		}
		return &query.Response{Data: []ir.Document{}}, nil

	default:
		return nil, fmt.Errorf("send: unknown mutation type %q", m.Type)
	}
}

func (c *StackClient) write(ctx context.Context, method, path string, doc ir.Document) (*query.Response, error) {
	var out writeResponse
	if err := c.fetch(ctx, method, path, doc, &out); err != nil {
		return nil, err
	}

	saved := doc.Clone()
	if out.Data != nil {
		saved = typed(*out.Data, doc.Type)
	}
	if out.ID != "" {
		saved.ID = out.ID
	}
	if out.Rev != "" {
		saved.Rev = out.Rev
	}
	return &query.Response{Data: []ir.Document{saved}}, nil
}

// applyReferencedBy returns file with its referenced_by relationship as the
// stack holds it after m.
func applyReferencedBy(file ir.Document, m query.Mutation) ir.Document {
	out := file.Clone()
	refs := slices.Clone(out.Refs(ir.ReferencedBy))
	for _, ref := range m.References {
		i := slices.Index(refs, ref)
		switch {
		case m.Type == query.AddReferencedBy && i < 0:
			refs = append(refs, ref)
		case m.Type == query.RemoveReferencedBy && i >= 0:
			refs = slices.Delete(refs, i, i+1)
		}
	}
	out.SetRefs(ir.ReferencedBy, refs)
	return out
}

func typed(doc ir.Document, doctype string) ir.Document {
	if doc.Type == "" {
		doc.Type = doctype
	}
	return doc
}
