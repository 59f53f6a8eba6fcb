package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DoctypeFiles is the doctype of file documents. Files hold the reverse side
// of file attachments in their referenced_by relationship.
const DoctypeFiles = "io.cozy.files"

// ReferencedBy is the relationship name files use to point back at the
// documents they are attached to.
const ReferencedBy = "referenced_by"

// Reserved top-level keys of the document wire form.
const (
	keyID            = "_id"
	keyAltID         = "id"
	keyType          = "_type"
	keyRev           = "_rev"
	keyMetadata      = "cozyMetadata"
	keyRelationships = "relationships"
)

// Ref is a raw pointer to another document.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// UnmarshalJSON accepts "_type" and "_id" as aliases of "type" and "id".
func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    string `json:"type"`
		ID      string `json:"id"`
		AltType string `json:"_type"`
		AltID   string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Ref{Type: raw.Type, ID: raw.ID}
	if r.Type == "" {
		r.Type = raw.AltType
	}
	if r.ID == "" {
		r.ID = raw.AltID
	}
	return nil
}

// Key returns the (type, id) pair as a single string, for maps and logs.
func (r Ref) Key() string {
	return r.Type + "/" + r.ID
}

// Relationship is the dehydrated form of a relationship: a list of refs.
// A single-valued relationship holds at most one ref.
type Relationship struct {
	Data []Ref `json:"data"`
}

// UnmarshalJSON accepts data as a list of refs, a single ref (the has-one
// form) or null. Both decode to a list.
func (r *Relationship) UnmarshalJSON(data []byte) error {
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Data = []Ref{}
	body := bytes.TrimSpace(raw.Data)
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
		return nil
	case body[0] == '{':
		var ref Ref
		if err := json.Unmarshal(body, &ref); err != nil {
			return fmt.Errorf("relationship data: %w", err)
		}
		r.Data = append(r.Data, ref)
		return nil
	default:
		if err := json.Unmarshal(body, &r.Data); err != nil {
			return fmt.Errorf("relationship data: %w", err)
		}
		if r.Data == nil {
			r.Data = []Ref{}
		}
		return nil
	}
}

// Document is the unit of normalized state, identified by (Type, ID).
type Document struct {
	Type          string
	ID            string
	Rev           string
	Attributes    IRObject
	Metadata      *CozyMetadata
	Relationships map[string]Relationship
}

// Ref returns the reference pointing at this document.
func (d Document) Ref() Ref {
	return Ref{Type: d.Type, ID: d.ID}
}

// Get returns an attribute, or nil when absent.
func (d Document) Get(key string) IRValue {
	if d.Attributes == nil {
		return nil
	}
	return d.Attributes[key]
}

// Set writes an attribute.
func (d *Document) Set(key string, value IRValue) {
	if d.Attributes == nil {
		d.Attributes = IRObject{}
	}
	d.Attributes[key] = value
}

// Refs returns the raw refs of a relationship, nil when undeclared.
func (d Document) Refs(name string) []Ref {
	return d.Relationships[name].Data
}

// SetRefs replaces the raw refs of a relationship. A nil refs slice is
// stored as an empty list so the relationship stays declared.
func (d *Document) SetRefs(name string, refs []Ref) {
	if d.Relationships == nil {
		d.Relationships = map[string]Relationship{}
	}
	if refs == nil {
		refs = []Ref{}
	}
	d.Relationships[name] = Relationship{Data: refs}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{
		Type:       d.Type,
		ID:         d.ID,
		Rev:        d.Rev,
		Attributes: d.Attributes.Clone(),
	}
	if d.Metadata != nil {
		m := d.Metadata.Clone()
		out.Metadata = &m
	}
	if d.Relationships != nil {
		out.Relationships = make(map[string]Relationship, len(d.Relationships))
		for name, rel := range d.Relationships {
			out.Relationships[name] = Relationship{Data: append([]Ref{}, rel.Data...)}
		}
	}
	return out
}

// Merge overlays incoming on d, last write wins per field: incoming
// attributes overwrite existing ones, other attributes are kept. Revision,
// metadata and each named relationship are replaced when incoming carries
// them.
func (d Document) Merge(incoming Document) Document {
	out := d.Clone()
	if incoming.Type != "" {
		out.Type = incoming.Type
	}
	if incoming.ID != "" {
		out.ID = incoming.ID
	}
	if incoming.Rev != "" {
		out.Rev = incoming.Rev
	}
	if len(incoming.Attributes) > 0 && out.Attributes == nil {
		out.Attributes = IRObject{}
	}
	for k, v := range incoming.Attributes {
		out.Attributes[k] = CloneValue(v)
	}
	if incoming.Metadata != nil {
		m := incoming.Metadata.Clone()
		out.Metadata = &m
	}
	for name, rel := range incoming.Relationships {
		out.SetRefs(name, append([]Ref{}, rel.Data...))
	}
	return out
}

// Object returns the wire form of the document as an IRObject.
func (d Document) Object() IRObject {
	obj := d.Attributes.Clone()
	if obj == nil {
		obj = IRObject{}
	}
	if d.ID != "" {
		obj[keyID] = IRString(d.ID)
	}
	if d.Type != "" {
		obj[keyType] = IRString(d.Type)
	}
	if d.Rev != "" {
		obj[keyRev] = IRString(d.Rev)
	}
	if d.Metadata != nil {
		obj[keyMetadata] = d.Metadata.Object()
	}
	if len(d.Relationships) > 0 {
		rels := make(IRObject, len(d.Relationships))
		for name, rel := range d.Relationships {
			data := make(IRArray, len(rel.Data))
			for i, ref := range rel.Data {
				data[i] = IRObject{"type": IRString(ref.Type), "id": IRString(ref.ID)}
			}
			rels[name] = IRObject{"data": data}
		}
		obj[keyRelationships] = rels
	}
	return obj
}

// MarshalJSON emits the document in its wire form with sorted keys.
func (d Document) MarshalJSON() ([]byte, error) {
	return d.Object().MarshalJSON()
}

// UnmarshalJSON decodes the wire form. Both "_id" and "id" are accepted.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = Document{Attributes: IRObject{}}
	for k, v := range raw {
		var err error
		switch k {
		case keyID:
			err = json.Unmarshal(v, &d.ID)
		case keyAltID:
			if d.ID == "" {
				err = json.Unmarshal(v, &d.ID)
			}
		case keyType:
			err = json.Unmarshal(v, &d.Type)
		case keyRev:
			err = json.Unmarshal(v, &d.Rev)
		case keyMetadata:
			var m CozyMetadata
			if err = json.Unmarshal(v, &m); err == nil {
				d.Metadata = &m
			}
		case keyRelationships:
			err = json.Unmarshal(v, &d.Relationships)
		default:
			var val IRValue
			if val, err = UnmarshalIRValue(v); err == nil {
				d.Attributes[k] = val
			}
		}
		if err != nil {
			return fmt.Errorf("document key %q: %w", k, err)
		}
	}
	return nil
}

// AppEntry records one application's latest write to a document.
// Keys this type does not know are kept in Extra.
type AppEntry struct {
	Date    time.Time `json:"date"`
	Slug    string    `json:"slug"`
	Version string    `json:"version,omitempty"`
	Extra   IRObject  `json:"-"`
}

// UnmarshalJSON reads an entry. A numeric version is kept in its decimal
// text form.
func (e *AppEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = AppEntry{}
	for k, v := range raw {
		var err error
		switch k {
		case "date":
			err = json.Unmarshal(v, &e.Date)
		case "slug":
			err = json.Unmarshal(v, &e.Slug)
		case "version":
			e.Version, err = versionText(v)
		default:
			var val IRValue
			if val, err = UnmarshalIRValue(v); err == nil {
				if e.Extra == nil {
					e.Extra = IRObject{}
				}
				e.Extra[k] = val
			}
		}
		if err != nil {
			return fmt.Errorf("app entry key %q: %w", k, err)
		}
	}
	return nil
}

func versionText(v json.RawMessage) (string, error) {
	body := bytes.TrimSpace(v)
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
		return "", nil
	case body[0] == '"':
		var s string
		err := json.Unmarshal(body, &s)
		return s, err
	default:
		var n json.Number
		if err := json.Unmarshal(body, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

func (e AppEntry) clone() AppEntry {
	e.Extra = e.Extra.Clone()
	return e
}

// CozyMetadata is the audit block tracking document provenance.
// Keys this type does not know are kept in Extra and written back as is.
type CozyMetadata struct {
	MetadataVersion     int        `json:"metadataVersion,omitempty"`
	DoctypeVersion      int        `json:"doctypeVersion,omitempty"`
	CreatedAt           time.Time  `json:"createdAt,omitzero"`
	CreatedByApp        string     `json:"createdByApp,omitempty"`
	CreatedByAppVersion string     `json:"createdByAppVersion,omitempty"`
	SourceAccount       string     `json:"sourceAccount,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt,omitzero"`
	UpdatedByApps       []AppEntry `json:"updatedByApps,omitempty"`
	Extra               IRObject   `json:"-"`
}

// Clone returns a deep copy of the metadata block.
func (m CozyMetadata) Clone() CozyMetadata {
	out := m
	if m.UpdatedByApps != nil {
		out.UpdatedByApps = make([]AppEntry, len(m.UpdatedByApps))
		for i, app := range m.UpdatedByApps {
			out.UpdatedByApps[i] = app.clone()
		}
	}
	out.Extra = m.Extra.Clone()
	return out
}

// Object returns the metadata as an IRObject, Extra keys included.
func (m CozyMetadata) Object() IRObject {
	obj := m.Extra.Clone()
	if obj == nil {
		obj = IRObject{}
	}
	if m.MetadataVersion != 0 {
		obj["metadataVersion"] = IRInt(m.MetadataVersion)
	}
	if m.DoctypeVersion != 0 {
		obj["doctypeVersion"] = IRInt(m.DoctypeVersion)
	}
	if !m.CreatedAt.IsZero() {
		obj["createdAt"] = IRString(m.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	if m.CreatedByApp != "" {
		obj["createdByApp"] = IRString(m.CreatedByApp)
	}
	if m.CreatedByAppVersion != "" {
		obj["createdByAppVersion"] = IRString(m.CreatedByAppVersion)
	}
	if m.SourceAccount != "" {
		obj["sourceAccount"] = IRString(m.SourceAccount)
	}
	if !m.UpdatedAt.IsZero() {
		obj["updatedAt"] = IRString(m.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	if len(m.UpdatedByApps) > 0 {
		apps := make(IRArray, len(m.UpdatedByApps))
		for i, app := range m.UpdatedByApps {
			entry := app.Extra.Clone()
			if entry == nil {
				entry = IRObject{}
			}
			entry["date"] = IRString(app.Date.UTC().Format(time.RFC3339Nano))
			entry["slug"] = IRString(app.Slug)
			if app.Version != "" {
				entry["version"] = IRString(app.Version)
			}
			apps[i] = entry
		}
		obj["updatedByApps"] = apps
	}
	return obj
}

// MarshalJSON writes known fields and Extra keys together.
func (m CozyMetadata) MarshalJSON() ([]byte, error) {
	return m.Object().MarshalJSON()
}

// UnmarshalJSON reads known fields and keeps the rest in Extra.
func (m *CozyMetadata) UnmarshalJSON(data []byte) error {
	type known CozyMetadata
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	var all IRObject
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, name := range []string{
		"metadataVersion", "doctypeVersion", "createdAt", "createdByApp",
		"createdByAppVersion", "sourceAccount", "updatedAt", "updatedByApps",
	} {
		delete(all, name)
	}
	*m = CozyMetadata(k)
	if len(all) > 0 {
		m.Extra = all
	}
	return nil
}
