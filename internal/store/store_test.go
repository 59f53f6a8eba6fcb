package store

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
)

var fixedNow = time.Date(2018, 5, 5, 9, 9, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	return New(WithNow(func() time.Time { return fixedNow }))
}

func todo(id, label string) ir.Document {
	return ir.Document{
		Type:       "io.cozy.todos",
		ID:         id,
		Attributes: ir.IRObject{"label": ir.IRString(label)},
	}
}

func TestStore_QueryLifecycle(t *testing.T) {
	s := setupTestStore(t)
	def := query.Q("io.cozy.todos")

	s.Dispatch(NewInitQuery("todos", def))

	q, err := s.Query("todos")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, StatusLoading, q.Status)
	assert.Equal(t, "io.cozy.todos", q.Doctype)
	assert.Empty(t, q.IDs)

	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{
		Data: []ir.Document{todo("1", "a"), todo("2", "b")},
		Next: true,
	}))

	q, err = s.Query("todos")
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, q.Status)
	assert.Equal(t, []string{"1", "2"}, q.IDs)
	assert.True(t, q.HasMore)
	assert.Equal(t, fixedNow, q.LastUpdate)
	assert.Equal(t, 1, q.FetchCount)

	doc, err := s.Document("io.cozy.todos", "2")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, ir.IRString("b"), doc.Get("label"))
}

func TestStore_ReceiveQueryResultFillsMissingType(t *testing.T) {
	s := setupTestStore(t)
	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))
	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{
		Data: []ir.Document{{ID: "1", Attributes: ir.IRObject{"label": ir.IRString("a")}}},
	}))

	doc, err := s.Document("io.cozy.todos", "1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "io.cozy.todos", doc.Type)
}

func TestStore_MergeIsLastWriteWinsPerField(t *testing.T) {
	s := setupTestStore(t)
	first := todo("1", "old")
	first.Set("done", ir.IRBool(false))
	s.Dispatch(ReceiveData{Documents: []ir.Document{first}})

	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))
	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{Data: []ir.Document{todo("1", "new")}}))

	doc, err := s.Document("io.cozy.todos", "1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("new"), doc.Get("label"))
	assert.Equal(t, ir.IRBool(false), doc.Get("done"))
}

func TestStore_IncludedDocumentsAreMerged(t *testing.T) {
	s := setupTestStore(t)
	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))
	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{
		Data:     []ir.Document{todo("1", "a")},
		Included: []ir.Document{{Type: "io.cozy.persons", ID: "p1"}},
	}))

	q, err := s.Query("todos")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, q.IDs)

	person, err := s.Document("io.cozy.persons", "p1")
	require.NoError(t, err)
	assert.NotNil(t, person)
}

func TestStore_ContinuationPagesAppend(t *testing.T) {
	s := setupTestStore(t)
	def := query.Q("io.cozy.todos").Limit(2)

	s.Dispatch(NewInitQuery("todos", def))
	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{Data: []ir.Document{todo("1", "a"), todo("2", "b")}, Next: true}))
	s.Dispatch(NewInitQuery("todos", def.Skip(2)))
	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{Data: []ir.Document{todo("2", "b"), todo("3", "c")}}))

	q, err := s.Query("todos")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, q.IDs)
	assert.False(t, q.HasMore)

	s.Dispatch(NewInitQuery("todos", def))
	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{Data: []ir.Document{todo("9", "z")}}))

	q, err = s.Query("todos")
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, q.IDs, "a first page replaces the list")
}

func TestStore_QueryError(t *testing.T) {
	s := setupTestStore(t)
	boom := errors.New("boom")

	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))
	s.Dispatch(NewReceiveQueryError("todos", boom))

	q, err := s.Query("todos")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, q.Status)
	assert.Same(t, boom, q.LastError)

	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))
	q, err = s.Query("todos")
	require.NoError(t, err)
	assert.Equal(t, StatusLoading, q.Status, "a failed query can be issued again")
	assert.NoError(t, q.LastError)
}

func TestStore_MutationLifecycle(t *testing.T) {
	s := setupTestStore(t)
	m := query.Create(todo("", "new"))

	s.Dispatch(NewInitMutation("create", m))
	st, err := s.Mutation("create")
	require.NoError(t, err)
	assert.Equal(t, StatusLoading, st.Status)

	created := todo("1", "new")
	created.Rev = "1-a"
	resp := &query.Response{Data: []ir.Document{created}}
	s.Dispatch(NewReceiveMutationResult("create", resp, MutationContext{}, m))

	st, err = s.Mutation("create")
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, st.Status)
	assert.Same(t, resp, st.Response)

	doc, err := s.Document("io.cozy.todos", "1")
	require.NoError(t, err)
	assert.Equal(t, "1-a", doc.Rev)
}

func TestStore_DeleteMutationRemovesDocument(t *testing.T) {
	s := setupTestStore(t)
	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))
	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{Data: []ir.Document{todo("1", "a"), todo("2", "b")}}))

	m := query.Delete(todo("1", "a"))
	s.Dispatch(NewInitMutation("delete", m))
	s.Dispatch(NewReceiveMutationResult("delete", &query.Response{}, MutationContext{}, m))

	doc, err := s.Document("io.cozy.todos", "1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	q, err := s.Query("todos")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, q.IDs)
}

func TestStore_MutationError(t *testing.T) {
	s := setupTestStore(t)
	m := query.Create(todo("", "x"))

	s.Dispatch(NewInitMutation("create", m))
	s.Dispatch(NewReceiveMutationError("create", errors.New("conflict"), m))

	st, err := s.Mutation("create")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.EqualError(t, st.LastError, "conflict")
}

func TestStore_ReceiveDataSkipsUnaddressable(t *testing.T) {
	s := setupTestStore(t)
	s.Dispatch(ReceiveData{Documents: []ir.Document{
		todo("1", "a"),
		{Type: "io.cozy.todos"},
	}})

	all, err := s.All("io.cozy.todos")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, []string{"io.cozy.todos"}, s.Doctypes())
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	s := setupTestStore(t)
	s.Dispatch(ReceiveData{Documents: []ir.Document{todo("1", "a")}})

	doc, err := s.Document("io.cozy.todos", "1")
	require.NoError(t, err)
	doc.Set("label", ir.IRString("mutated"))

	again, err := s.Document("io.cozy.todos", "1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("a"), again.Get("label"))
}

func TestStore_DocumentsKeepsOrderAndGaps(t *testing.T) {
	s := setupTestStore(t)
	s.Dispatch(ReceiveData{Documents: []ir.Document{todo("1", "a"), todo("3", "c")}})

	docs, err := s.Documents("io.cozy.todos", []string{"3", "2", "1"})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "3", docs[0].ID)
	assert.Nil(t, docs[1])
	assert.Equal(t, "1", docs[2].ID)
}

func TestStore_ResetState(t *testing.T) {
	s := setupTestStore(t)
	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))
	s.Dispatch(ReceiveData{Documents: []ir.Document{todo("1", "a")}})

	s.Dispatch(ResetState{})

	q, err := s.Query("todos")
	require.NoError(t, err)
	assert.Nil(t, q)
	doc, err := s.Document("io.cozy.todos", "1")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestStore_SubscribeAndRevision(t *testing.T) {
	s := setupTestStore(t)
	var seen []ActionType
	unsubscribe := s.Subscribe(func(a Action) {
		seen = append(seen, a.Type())
	})

	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))
	s.Dispatch(NewReceiveQueryResult("todos", &query.Response{}))
	unsubscribe()
	s.Dispatch(ResetState{})

	assert.Equal(t, []ActionType{ActionInitQuery, ActionReceiveQueryResult}, seen)
	assert.Equal(t, int64(3), s.Revision())
}

func TestStore_SubscriberMayRead(t *testing.T) {
	s := setupTestStore(t)
	var status Status
	s.Subscribe(func(Action) {
		q, err := s.Query("todos")
		require.NoError(t, err)
		status = q.Status
	})

	s.Dispatch(NewInitQuery("todos", query.Q("io.cozy.todos")))

	assert.Equal(t, StatusLoading, status)
}

func TestStore_Closed(t *testing.T) {
	s := setupTestStore(t)
	s.Close()
	s.Dispatch(ReceiveData{Documents: []ir.Document{todo("1", "a")}})

	_, err := s.Document("io.cozy.todos", "1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Query("todos")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int64(0), s.Revision())
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	s := setupTestStore(t)
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := todo(strconv.Itoa(i), "x")
			s.Dispatch(ReceiveData{Documents: []ir.Document{doc}})
			_, _ = s.All("io.cozy.todos")
		}()
	}
	wg.Wait()

	all, err := s.All("io.cozy.todos")
	require.NoError(t, err)
	assert.Len(t, all, 50)
	assert.Equal(t, int64(50), s.Revision())
}
