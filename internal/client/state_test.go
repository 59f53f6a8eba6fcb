package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/store"
	"github.com/roach88/doclink/internal/testutil"
)

func TestGetDocumentFromState(t *testing.T) {
	c := setupClient(t, []link.Link{testutil.NewBackend(testutil.EchoWrites("x"))})
	c.SetData(testutil.Todo("t1", "Buy milk"))

	doc := c.GetDocumentFromState(testutil.DoctypeTodos, "t1")
	require.NotNil(t, doc)
	assert.Equal(t, ir.IRString("Buy milk"), doc.Get("label"))

	doc.Set("label", ir.IRString("changed"))
	again := c.GetDocumentFromState(testutil.DoctypeTodos, "t1")
	assert.Equal(t, ir.IRString("Buy milk"), again.Get("label"), "reads return copies")

	assert.Nil(t, c.GetDocumentFromState(testutil.DoctypeTodos, "missing"))
}

func TestGetDocumentFromState_NeverFails(t *testing.T) {
	var nilClient *Client
	assert.Nil(t, nilClient.GetDocumentFromState(testutil.DoctypeTodos, "t1"))
	assert.Equal(t, QueryResult{}, nilClient.GetQueryFromState("todos"))

	s := store.New()
	c := setupClient(t, []link.Link{testutil.NewBackend(testutil.EchoWrites("x"))}, WithStore(s))
	c.SetData(testutil.Todo("t1", "Buy milk"))
	s.Close()

	assert.Nil(t, c.GetDocumentFromState(testutil.DoctypeTodos, "t1"))
	assert.Equal(t, QueryResult{}, c.GetQueryFromState("todos"))
}

func TestGetQueryFromState_Unknown(t *testing.T) {
	c := setupClient(t, []link.Link{testutil.NewBackend(testutil.EchoWrites("x"))})

	assert.Equal(t, QueryResult{}, c.GetQueryFromState("nope"))
}

func TestGetQueryFromState_Hydrated(t *testing.T) {
	backend := testutil.NewPagedBackend(&query.Response{Data: []ir.Document{
		testutil.Todo("t1", "Buy milk", "p1"),
		testutil.Todo("t2", "Walk dog"),
	}})
	c := setupClient(t, []link.Link{backend})
	c.SetData(testutil.Person("p1", "Alice"))
	_, err := c.Query(context.Background(), query.Q(testutil.DoctypeTodos), WithName("todos"))
	require.NoError(t, err)

	plain := c.GetQueryFromState("todos")
	assert.Len(t, plain.Documents, 2)
	assert.Nil(t, plain.Hydrated)

	res := c.GetQueryFromState("todos", WithHydrated())
	require.Len(t, res.Hydrated, 2)
	assert.Equal(t, "todos", res.Hydrated[0].QueryName)
	owner := res.Hydrated[0].Get("authors").Documents()
	require.Len(t, owner, 1)
	assert.Equal(t, "p1", owner[0].ID)

	res.Hydrated[0].Get("authors").Add(ir.Ref{Type: testutil.DoctypePersons, ID: "p2"})
	q, err := c.Store().Query("todos")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, q.IDs, "hydration never modifies stored ids")
	stored := c.GetDocumentFromState(testutil.DoctypeTodos, "t1")
	assert.Equal(t, testutil.Refs(testutil.DoctypePersons, "p1"), stored.Refs("authors"), "nor stored documents")
}

func TestHydrateDocuments_NullPassesThrough(t *testing.T) {
	c := setupClient(t, []link.Link{testutil.NewBackend(testutil.EchoWrites("x"))})

	got := c.HydrateDocuments(testutil.DoctypeTodos, []*ir.Document{nil}, "todos")

	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}
