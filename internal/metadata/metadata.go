// Package metadata maintains the cozyMetadata audit block of documents.
package metadata

import (
	"time"

	"github.com/roach88/doclink/internal/ir"
)

// Version is the current version of the cozyMetadata block layout.
const Version = 1

// Event is the kind of write the metadata is prepared for.
type Event string

const (
	Creation Event = "creation"
	Update   Event = "update"
)

// Identity is the application identity of a session. It is immutable for
// the lifetime of the session.
type Identity struct {
	Slug          string
	Version       string
	SourceAccount string
}

// Options carries the per-call inputs of Ensure.
type Options struct {
	Event          Event
	Now            time.Time
	DoctypeVersion int
}

// Ensure returns a copy of doc with its cozyMetadata prepared for a write.
//
// On creation the existing block is kept as a base, caller-set versions and
// provenance win over defaults, both timestamps are set to now and
// updatedByApps is reset to a single entry for the current app.
//
// On update every field is kept except updatedAt, and the current app's
// entry in updatedByApps is moved to the front with a fresh date.
func Ensure(doc ir.Document, id Identity, opts Options) ir.Document {
	out := doc.Clone()

	var m ir.CozyMetadata
	if out.Metadata != nil {
		m = *out.Metadata
	}

	switch opts.Event {
	case Creation:
		if m.MetadataVersion == 0 {
			m.MetadataVersion = Version
		}
		if m.DoctypeVersion == 0 {
			m.DoctypeVersion = opts.DoctypeVersion
		}
		if m.CreatedByApp == "" {
			m.CreatedByApp = id.Slug
		}
		if m.CreatedByAppVersion == "" {
			m.CreatedByAppVersion = id.Version
		}
		if m.SourceAccount == "" {
			m.SourceAccount = id.SourceAccount
		}
		m.CreatedAt = opts.Now
		m.UpdatedAt = opts.Now
		m.UpdatedByApps = []ir.AppEntry{{Date: opts.Now, Slug: id.Slug, Version: id.Version}}

	case Update:
		m.UpdatedAt = opts.Now
		m.UpdatedByApps = touch(m.UpdatedByApps, ir.AppEntry{Date: opts.Now, Slug: id.Slug, Version: id.Version})
	}

	out.Metadata = &m
	return out
}

// touch removes every entry of entry.Slug and puts entry first. Other
// entries keep their relative order.
func touch(apps []ir.AppEntry, entry ir.AppEntry) []ir.AppEntry {
	out := make([]ir.AppEntry, 0, len(apps)+1)
	out = append(out, entry)
	for _, app := range apps {
		if app.Slug != entry.Slug {
			out = append(out, app)
		}
	}
	return out
}
