package query

import "github.com/roach88/doclink/internal/ir"

// Response is what the terminal link returns for any operation.
type Response struct {
	Data     []ir.Document   `json:"data"`
	Included []ir.Document   `json:"included,omitempty"`
	Next     bool            `json:"next,omitempty"`
	Bookmark string          `json:"bookmark,omitempty"`
	Errors   []ResponseError `json:"errors,omitempty"`
}

// ResponseError is a JSON:API style error entry returned alongside data.
type ResponseError struct {
	Status string `json:"status,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// First returns the first document of the response, if any.
func (r *Response) First() (ir.Document, bool) {
	if r == nil || len(r.Data) == 0 {
		return ir.Document{}, false
	}
	return r.Data[0], true
}
