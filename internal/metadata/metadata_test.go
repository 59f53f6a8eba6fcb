package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doclink/internal/ir"
)

var (
	now      = time.Date(2018, 5, 5, 9, 9, 0, 115000000, time.UTC)
	earlier  = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	identity = Identity{Slug: "cozy-client-test", Version: "1.2.3", SourceAccount: "my-account"}
)

func TestEnsure_Creation(t *testing.T) {
	doc := ir.Document{Type: "io.cozy.todos", Attributes: ir.IRObject{"label": ir.IRString("Buy milk")}}

	got := Ensure(doc, identity, Options{Event: Creation, Now: now, DoctypeVersion: 4})

	require.NotNil(t, got.Metadata)
	assert.Equal(t, ir.CozyMetadata{
		MetadataVersion:     Version,
		DoctypeVersion:      4,
		CreatedAt:           now,
		CreatedByApp:        "cozy-client-test",
		CreatedByAppVersion: "1.2.3",
		SourceAccount:       "my-account",
		UpdatedAt:           now,
		UpdatedByApps:       []ir.AppEntry{{Date: now, Slug: "cozy-client-test", Version: "1.2.3"}},
	}, *got.Metadata)
	assert.Nil(t, doc.Metadata, "input must not be modified")
}

func TestEnsure_CreationKeepsCallerValues(t *testing.T) {
	doc := ir.Document{
		Type: "io.cozy.todos",
		Metadata: &ir.CozyMetadata{
			DoctypeVersion: 42,
			CreatedByApp:   "My great app",
			Extra:          ir.IRObject{"customField": ir.IRString("foo")},
		},
	}

	got := Ensure(doc, identity, Options{Event: Creation, Now: now, DoctypeVersion: 4})

	assert.Equal(t, 42, got.Metadata.DoctypeVersion)
	assert.Equal(t, "My great app", got.Metadata.CreatedByApp)
	assert.Equal(t, Version, got.Metadata.MetadataVersion)
	assert.Equal(t, ir.IRObject{"customField": ir.IRString("foo")}, got.Metadata.Extra)
	assert.Equal(t, []ir.AppEntry{{Date: now, Slug: "cozy-client-test", Version: "1.2.3"}}, got.Metadata.UpdatedByApps)
}

func TestEnsure_CreationWithoutSourceAccount(t *testing.T) {
	got := Ensure(ir.Document{Type: "io.cozy.todos"}, Identity{Slug: "app", Version: "1"}, Options{Event: Creation, Now: now})

	assert.Empty(t, got.Metadata.SourceAccount)
	assert.NotContains(t, got.Metadata.Object(), "sourceAccount")
}

func TestEnsure_Update(t *testing.T) {
	doc := ir.Document{
		Type: "io.cozy.todos",
		ID:   "todo-1",
		Rev:  "1-a",
		Metadata: &ir.CozyMetadata{
			MetadataVersion: 1,
			DoctypeVersion:  4,
			CreatedAt:       earlier,
			CreatedByApp:    "other-app",
			UpdatedAt:       earlier,
			UpdatedByApps: []ir.AppEntry{
				{Date: earlier, Slug: "other-app", Version: "27"},
			},
		},
	}

	got := Ensure(doc, identity, Options{Event: Update, Now: now})

	assert.Equal(t, earlier, got.Metadata.CreatedAt)
	assert.Equal(t, "other-app", got.Metadata.CreatedByApp)
	assert.Equal(t, now, got.Metadata.UpdatedAt)
	assert.Equal(t, []ir.AppEntry{
		{Date: now, Slug: "cozy-client-test", Version: "1.2.3"},
		{Date: earlier, Slug: "other-app", Version: "27"},
	}, got.Metadata.UpdatedByApps)
}

func TestEnsure_UpdateMovesCurrentAppFirst(t *testing.T) {
	doc := ir.Document{
		Type: "io.cozy.todos",
		ID:   "todo-1",
		Rev:  "1-a",
		Metadata: &ir.CozyMetadata{
			UpdatedByApps: []ir.AppEntry{
				{Date: earlier, Slug: "a"},
				{Date: earlier, Slug: "cozy-client-test", Version: "1.0.0"},
				{Date: earlier, Slug: "b"},
			},
		},
	}

	got := Ensure(doc, identity, Options{Event: Update, Now: now})

	apps := got.Metadata.UpdatedByApps
	require.Len(t, apps, 3)
	assert.Equal(t, ir.AppEntry{Date: now, Slug: "cozy-client-test", Version: "1.2.3"}, apps[0])
	assert.Equal(t, "a", apps[1].Slug)
	assert.Equal(t, "b", apps[2].Slug)

	count := 0
	for _, app := range apps {
		if app.Slug == identity.Slug {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEnsure_UpdateWithoutMetadata(t *testing.T) {
	got := Ensure(ir.Document{Type: "io.cozy.todos", ID: "1", Rev: "1-a"}, identity, Options{Event: Update, Now: now})

	assert.Equal(t, ir.CozyMetadata{
		UpdatedAt:     now,
		UpdatedByApps: []ir.AppEntry{{Date: now, Slug: "cozy-client-test", Version: "1.2.3"}},
	}, *got.Metadata)
}
