package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/store"
	"github.com/roach88/doclink/internal/testutil"
)

func TestSeed_LoadsEveryDoctype(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, err := s.WriteDocuments(ctx, testutil.Todo("t1", "a"), testutil.Person("p1", "Ada"))
	require.NoError(t, err)

	st := store.New()
	var seen []store.ActionType
	st.Subscribe(func(a store.Action) { seen = append(seen, a.Type()) })

	n, err := s.Seed(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []store.ActionType{store.ActionReceiveData}, seen)

	doc, err := st.Document(testutil.DoctypePersons, "p1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, ir.IRString("Ada"), doc.Get("name"))
}

func TestSeed_SelectedDoctypes(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, err := s.WriteDocuments(ctx, testutil.Todo("t1", "a"), testutil.Person("p1", "Ada"))
	require.NoError(t, err)

	st := store.New()
	n, err := s.Seed(ctx, st, testutil.DoctypeTodos)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{testutil.DoctypeTodos}, st.Doctypes())
}

func TestSeed_EmptySnapshotDispatchesNothing(t *testing.T) {
	st := store.New()
	before := st.Revision()

	n, err := createTestStore(t).Seed(context.Background(), st)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before, st.Revision())
}

func TestSave_WritesStoreContents(t *testing.T) {
	ctx := context.Background()
	st := store.New()
	st.Dispatch(store.ReceiveData{Documents: []ir.Document{
		testutil.Todo("t1", "a"),
		testutil.Todo("t2", "b"),
		testutil.Person("p1", "Ada"),
	}})

	s := createTestStore(t)
	n, err := s.Save(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Save(ctx, st)
	require.NoError(t, err)
	assert.Zero(t, n, "unchanged documents are skipped")
}
