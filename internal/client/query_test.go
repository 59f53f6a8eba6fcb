package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/store"
	"github.com/roach88/doclink/internal/testutil"
)

var errBackend = errors.New("backend unavailable")

func recordActions(c *Client) *[]store.ActionType {
	var actions []store.ActionType
	c.Store().Subscribe(func(a store.Action) { actions = append(actions, a.Type()) })
	return &actions
}

func TestQuery_InitDispatchedBeforeRequest(t *testing.T) {
	var c *Client
	var statusDuringRequest store.Status
	backend := testutil.NewBackend(func(op query.Operation, call int) (*query.Response, error) {
		statusDuringRequest = c.GetQueryFromState("todos").Status
		return &query.Response{Data: []ir.Document{testutil.Todo("t1", "Buy milk")}}, nil
	})
	c = setupClient(t, []link.Link{backend})
	actions := recordActions(c)

	resp, err := c.Query(context.Background(), query.Q(testutil.DoctypeTodos), WithName("todos"))
	require.NoError(t, err)

	assert.Len(t, resp.Data, 1)
	assert.Equal(t, store.StatusLoading, statusDuringRequest)
	assert.Equal(t, []store.ActionType{store.ActionInitQuery, store.ActionReceiveQueryResult}, *actions)

	res := c.GetQueryFromState("todos")
	assert.Equal(t, store.StatusLoaded, res.Status)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "t1", res.Documents[0].ID)
}

func TestQuery_DefaultNameIsDefinitionHash(t *testing.T) {
	backend := testutil.NewPagedBackend(&query.Response{Data: []ir.Document{}})
	c := setupClient(t, []link.Link{backend})
	def := query.Q(testutil.DoctypeTodos).Where(query.Eq("done", ir.IRBool(false)))

	_, err := c.Query(context.Background(), def)
	require.NoError(t, err)

	name, err := def.Name()
	require.NoError(t, err)
	assert.Equal(t, store.StatusLoaded, c.GetQueryFromState(name).Status)
}

func TestQuery_TransportErrorRecordedAndReturnedUnchanged(t *testing.T) {
	backend := testutil.NewBackend(func(query.Operation, int) (*query.Response, error) {
		return nil, errBackend
	})
	c := setupClient(t, []link.Link{backend})
	actions := recordActions(c)

	_, err := c.Query(context.Background(), query.Q(testutil.DoctypeTodos), WithName("todos"))

	assert.Equal(t, errBackend, err)
	assert.False(t, IsConfigError(err))
	assert.Equal(t, []store.ActionType{store.ActionInitQuery, store.ActionReceiveQueryError}, *actions)
	res := c.GetQueryFromState("todos")
	assert.Equal(t, store.StatusFailed, res.Status)
	assert.Equal(t, errBackend, res.LastError)
}

func TestQuery_InvalidDefinition(t *testing.T) {
	backend := testutil.NewBackend(testutil.EchoWrites("x"))
	c := setupClient(t, []link.Link{backend})
	actions := recordActions(c)

	_, err := c.Query(context.Background(), query.Q(""))

	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, query.ErrInvalidDefinition)
	assert.Zero(t, backend.Calls())
	assert.Empty(t, *actions)
}

func TestQuery_IncludesExpansion(t *testing.T) {
	backend := testutil.NewBackend(func(op query.Operation, call int) (*query.Response, error) {
		switch call {
		case 0:
			return &query.Response{Data: []ir.Document{
				testutil.Todo("t1", "Buy milk", "p1", "p2"),
				testutil.Todo("t2", "Walk dog", "p9"),
			}}, nil
		case 1:
			return &query.Response{Data: []ir.Document{
				testutil.Person("p1", "Alice"),
				testutil.Person("p2", "Bob"),
			}}, nil
		}
		return nil, errors.New("unexpected call")
	})
	c := setupClient(t, []link.Link{backend})

	resp, err := c.Query(context.Background(), query.Q(testutil.DoctypeTodos).Include("authors"), WithName("todos"))
	require.NoError(t, err)

	require.Equal(t, 2, backend.Calls(), "one primary request and one batched include request")
	assert.Equal(t, query.Q(testutil.DoctypePersons).GetByIDs("p1", "p2", "p9"), backend.Operations()[1])

	assert.Len(t, resp.Included, 2)
	assert.Equal(t, testutil.Refs(testutil.DoctypePersons, "p1", "p2"), resp.Data[0].Refs("authors"))
	assert.Equal(t, []ir.Ref{}, resp.Data[1].Refs("authors"))

	res := c.GetQueryFromState("todos", WithHydrated())
	require.Len(t, res.Hydrated, 2)
	authors := res.Hydrated[0].Get("authors").Documents()
	require.Len(t, authors, 2)
	assert.Equal(t, ir.IRString("Alice"), authors[0].Get("name"))
	assert.Empty(t, res.Hydrated[1].Get("authors").Documents())
}

func TestQuery_IncludesFilesAndNothingToFetch(t *testing.T) {
	backend := testutil.NewBackend(func(op query.Operation, call int) (*query.Response, error) {
		switch call {
		case 0:
			return &query.Response{Data: []ir.Document{
				testutil.Todo("t1", "Buy milk"),
				testutil.Todo("t2", "Walk dog"),
			}}, nil
		case 1:
			return &query.Response{Data: []ir.Document{testutil.File("f1", "a.pdf", "t1")}}, nil
		}
		return nil, errors.New("unexpected call")
	})
	c := setupClient(t, []link.Link{backend})

	resp, err := c.Query(context.Background(), query.Q(testutil.DoctypeTodos).Include("attachments", "authors"))
	require.NoError(t, err)

	assert.Equal(t, 2, backend.Calls(), "authors have no refs to fetch")
	assert.Equal(t, testutil.Refs(ir.DoctypeFiles, "f1"), resp.Data[0].Refs("attachments"))
	assert.Equal(t, []ir.Ref{}, resp.Data[1].Refs("attachments"))
	assert.Equal(t, []ir.Ref{}, resp.Data[0].Refs("authors"))
	assert.NotNil(t, c.GetDocumentFromState(ir.DoctypeFiles, "f1"), "included documents are normalized")
}

func TestQuery_UnknownIncludeFailsBeforeRequest(t *testing.T) {
	backend := testutil.NewBackend(testutil.EchoWrites("x"))
	c := setupClient(t, []link.Link{backend})

	_, err := c.Query(context.Background(), query.Q(testutil.DoctypeTodos).Include("nope"))

	assert.ErrorIs(t, err, ErrUnknownRelationship)
	assert.True(t, IsConfigError(err))
	assert.Zero(t, backend.Calls())
}

func TestQuery_IncludeFailureFailsQuery(t *testing.T) {
	backend := testutil.NewBackend(func(op query.Operation, call int) (*query.Response, error) {
		if call == 0 {
			return &query.Response{Data: []ir.Document{testutil.Todo("t1", "x", "p1")}}, nil
		}
		return nil, errBackend
	})
	c := setupClient(t, []link.Link{backend})

	_, err := c.Query(context.Background(), query.Q(testutil.DoctypeTodos).Include("authors"), WithName("todos"))

	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, store.StatusFailed, c.GetQueryFromState("todos").Status)
}

func TestQueryAll_AccumulatesPages(t *testing.T) {
	backend := testutil.NewPagedBackend(
		&query.Response{Data: []ir.Document{testutil.Todo("a", "A")}, Next: true},
		&query.Response{Data: []ir.Document{testutil.Todo("b", "B")}, Next: true},
		&query.Response{Data: []ir.Document{testutil.Todo("c", "C")}, Next: false},
	)
	c := setupClient(t, []link.Link{backend})
	def := query.Q(testutil.DoctypeTodos).Limit(1)

	docs, err := c.QueryAll(context.Background(), def, WithName("all-todos"))
	require.NoError(t, err)

	assert.Equal(t, 3, backend.Calls())
	ops := backend.Operations()
	assert.Equal(t, def, ops[0])
	assert.Equal(t, def.Skip(1), ops[1])
	assert.Equal(t, def.Skip(2), ops[2])

	res := c.GetQueryFromState("all-todos")
	assert.Equal(t, 3, res.FetchCount)
	assert.Len(t, res.Documents, 3, "continuation pages append to the query ids")

	data, err := json.MarshalIndent(docs, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "query_all_pages", data)
}

func TestQueryAll_FollowsBookmarks(t *testing.T) {
	backend := testutil.NewPagedBackend(
		&query.Response{Data: []ir.Document{testutil.Todo("a", "A")}, Next: true, Bookmark: "bm-1"},
		&query.Response{Data: []ir.Document{testutil.Todo("b", "B")}},
	)
	c := setupClient(t, []link.Link{backend})
	def := query.Q(testutil.DoctypeTodos).Where(query.Eq("done", ir.IRBool(false)))

	docs, err := c.QueryAll(context.Background(), def)
	require.NoError(t, err)

	assert.Len(t, docs, 2)
	assert.Equal(t, def.Bookmark("bm-1"), backend.Operations()[1])
}

func TestQueryAll_MaxPages(t *testing.T) {
	backend := testutil.NewBackend(func(op query.Operation, call int) (*query.Response, error) {
		return &query.Response{Data: []ir.Document{testutil.Todo("t", "x")}, Next: true}, nil
	})
	c := setupClient(t, []link.Link{backend})

	docs, err := c.QueryAll(context.Background(), query.Q(testutil.DoctypeTodos), WithMaxPages(2))

	assert.ErrorIs(t, err, ErrMaxPagesExceeded)
	assert.Nil(t, docs)
	assert.Equal(t, 2, backend.Calls())
}

func TestQueryAll_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := testutil.NewBackend(func(op query.Operation, call int) (*query.Response, error) {
		cancel()
		return &query.Response{Data: []ir.Document{testutil.Todo("t", "x")}, Next: true}, nil
	})
	c := setupClient(t, []link.Link{backend})

	_, err := c.QueryAll(ctx, query.Q(testutil.DoctypeTodos), WithName("todos"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, backend.Calls())
	assert.Equal(t, store.StatusLoaded, c.GetQueryFromState("todos").Status, "the page in flight is still recorded")
}

func TestQueryAll_PageErrorHalts(t *testing.T) {
	backend := testutil.NewBackend(func(op query.Operation, call int) (*query.Response, error) {
		if call == 1 {
			return nil, errBackend
		}
		return &query.Response{Data: []ir.Document{testutil.Todo("a", "A")}, Next: true}, nil
	})
	c := setupClient(t, []link.Link{backend})

	docs, err := c.QueryAll(context.Background(), query.Q(testutil.DoctypeTodos))

	assert.Equal(t, errBackend, err)
	assert.Nil(t, docs)
	assert.Equal(t, 2, backend.Calls())
}

func TestFailureActionsCarryMessageAndCause(t *testing.T) {
	backend := testutil.NewBackend(func(query.Operation, int) (*query.Response, error) {
		return nil, errBackend
	})
	c := setupClient(t, []link.Link{backend})

	var dispatched []store.Action
	c.Store().Subscribe(func(a store.Action) { dispatched = append(dispatched, a) })

	def := query.Q(testutil.DoctypeTodos)
	_, err := c.Query(context.Background(), def, WithName("todos"))
	require.ErrorIs(t, err, errBackend)

	doc := testutil.Todo("t1", "Buy milk")
	_, err = c.Save(context.Background(), doc, WithName("save-todo"))
	require.ErrorIs(t, err, errBackend)

	require.Len(t, dispatched, 4)
	assert.Equal(t, store.NewReceiveQueryError("todos", errBackend), dispatched[1])

	mutErr, ok := dispatched[3].(store.ReceiveMutationError)
	require.True(t, ok, "got %T", dispatched[3])
	assert.Equal(t, "save-todo", mutErr.Name)
	assert.Equal(t, "backend unavailable", mutErr.Message)
	assert.ErrorIs(t, mutErr.Err, errBackend)
	assert.Equal(t, query.CreateDocument, mutErr.Mutation.Type)
}
