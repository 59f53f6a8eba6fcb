package transport

import (
	"encoding/json"

	"github.com/roach88/doclink/internal/ir"
)

// jsonAPIRef is a resource identifier.
type jsonAPIRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type jsonAPIRefList struct {
	Data []jsonAPIRef `json:"data"`
}

func jsonAPIRefs(refs []ir.Ref) jsonAPIRefList {
	out := jsonAPIRefList{Data: make([]jsonAPIRef, len(refs))}
	for i, r := range refs {
		out.Data[i] = jsonAPIRef{Type: r.Type, ID: r.ID}
	}
	return out
}

// jsonAPIResource is a full resource object.
type jsonAPIResource struct {
	Type          string                     `json:"type"`
	ID            string                     `json:"id"`
	Attributes    json.RawMessage            `json:"attributes"`
	Meta          jsonAPIMeta                `json:"meta"`
	Relationships map[string]ir.Relationship `json:"relationships"`
}

type jsonAPIMeta struct {
	Rev string `json:"rev"`
}

// jsonAPIList is a relationship listing with the targets included.
type jsonAPIList struct {
	Data     []jsonAPIRef      `json:"data"`
	Included []jsonAPIResource `json:"included"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

// documents returns the included resources as documents, in the order of
// the data refs. Refs whose resource is not included are skipped.
func (l jsonAPIList) documents(doctype string) ([]ir.Document, error) {
	byID := make(map[string]jsonAPIResource, len(l.Included))
	for _, res := range l.Included {
		byID[res.ID] = res
	}

	out := make([]ir.Document, 0, len(l.Data))
	for _, ref := range l.Data {
		res, ok := byID[ref.ID]
		if !ok {
			continue
		}
		doc, err := res.document(doctype)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r jsonAPIResource) document(doctype string) (ir.Document, error) {
	doc := ir.Document{Type: r.Type, ID: r.ID, Rev: r.Meta.Rev, Attributes: ir.IRObject{}}
	if doc.Type == "" {
		doc.Type = doctype
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &doc.Attributes); err != nil {
			return ir.Document{}, err
		}
	}
	if len(r.Relationships) > 0 {
		doc.Relationships = r.Relationships
	}
	return doc, nil
}
