package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
)

const doctypeTodos = "io.cozy.todos"

// recorded is one request seen by the fake stack.
type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type fakeStack struct {
	mu       sync.Mutex
	requests []recorded
}

func (f *fakeStack) record(r *http.Request) recorded {
	rec := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	return rec
}

func (f *fakeStack) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func setupStack(t *testing.T, mux func(f *fakeStack, m *http.ServeMux)) (*StackClient, *fakeStack) {
	t.Helper()
	f := &fakeStack{}
	m := http.NewServeMux()
	mux(f, m)
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithToken("tok"), WithRetry(0, time.Millisecond, time.Millisecond)), f
}

func TestSend_GetByID(t *testing.T) {
	c, f := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("GET /data/{doctype}/{id}", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			writeJSON(w, map[string]any{"_id": r.PathValue("id"), "_rev": "1-a", "label": "Buy milk"})
		})
	})

	resp, err := c.Send(context.Background(), query.Q(doctypeTodos).GetByID("t1"))
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	doc := resp.Data[0]
	assert.Equal(t, doctypeTodos, doc.Type, "doctype is filled from the definition")
	assert.Equal(t, "t1", doc.ID)
	assert.Equal(t, "1-a", doc.Rev)
	assert.Equal(t, ir.IRString("Buy milk"), doc.Get("label"))
	assert.Equal(t, "Bearer tok", f.last().Auth)
}

func TestSend_GetByIDs_SkipsMissingRows(t *testing.T) {
	c, f := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("POST /data/{doctype}/_all_docs", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			writeJSON(w, map[string]any{"rows": []any{
				map[string]any{"id": "t1", "doc": map[string]any{"_id": "t1", "label": "a"}},
				map[string]any{"key": "t2", "error": "not_found"},
			}})
		})
	})

	resp, err := c.Send(context.Background(), query.Q(doctypeTodos).GetByIDs("t1", "t2"))
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	assert.Equal(t, "t1", resp.Data[0].ID)
	assert.Equal(t, "include_docs=true", f.last().Query)
	assert.Equal(t, []any{"t1", "t2"}, f.last().Body["keys"])
}

func TestSend_Find(t *testing.T) {
	c, f := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("POST /data/{doctype}/_find", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			writeJSON(w, map[string]any{
				"docs":     []any{map[string]any{"_id": "t1", "done": true}},
				"next":     true,
				"bookmark": "bm-1",
			})
		})
	})

	def := query.Q(doctypeTodos).
		Where(query.Eq("done", ir.IRBool(true))).
		Sort(query.SortField{Field: "label"}).
		Limit(1).
		Bookmark("bm-0")
	resp, err := c.Send(context.Background(), def)
	require.NoError(t, err)

	assert.True(t, resp.Next)
	assert.Equal(t, "bm-1", resp.Bookmark)
	require.Len(t, resp.Data, 1)

	body := f.last().Body
	assert.Equal(t, map[string]any{"done": map[string]any{"$eq": true}}, body["selector"])
	assert.Equal(t, []any{map[string]any{"label": "asc"}}, body["sort"])
	assert.EqualValues(t, 1, body["limit"])
	assert.Equal(t, "bm-0", body["bookmark"])
}

func TestSend_NormalDocsPaging(t *testing.T) {
	c, f := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("GET /data/{doctype}/_normal_docs", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			writeJSON(w, map[string]any{
				"rows":       []any{map[string]any{"_id": "t3"}},
				"total_rows": 3,
			})
		})
	})

	resp, err := c.Send(context.Background(), query.Q(doctypeTodos).Limit(1).Skip(2))
	require.NoError(t, err)

	assert.False(t, resp.Next, "skip 2 plus one row reaches the total")
	assert.Equal(t, "limit=1&skip=2", f.last().Query)
}

func TestSend_ReferencedFiles(t *testing.T) {
	c, f := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("GET /data/{doctype}/{id}/relationships/references", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			owner := map[string]any{"type": doctypeTodos, "id": r.PathValue("id")}
			writeJSON(w, map[string]any{
				"data": []any{map[string]any{"type": ir.DoctypeFiles, "id": "f1"}},
				"included": []any{map[string]any{
					"type":       ir.DoctypeFiles,
					"id":         "f1",
					"attributes": map[string]any{"name": "a.pdf"},
					"meta":       map[string]any{"rev": "2-b"},
					"relationships": map[string]any{
						"referenced_by": map[string]any{"data": []any{owner}},
					},
				}},
			})
		})
	})

	def := query.Q(ir.DoctypeFiles).ReferencedByDocs(
		ir.Ref{Type: doctypeTodos, ID: "t1"},
		ir.Ref{Type: doctypeTodos, ID: "t2"},
	)
	resp, err := c.Send(context.Background(), def)
	require.NoError(t, err)

	require.Len(t, resp.Data, 1, "files are deduplicated across owners")
	file := resp.Data[0]
	assert.Equal(t, "2-b", file.Rev)
	assert.Equal(t, ir.IRString("a.pdf"), file.Get("name"))
	assert.Equal(t, []ir.Ref{{Type: doctypeTodos, ID: "t1"}}, file.Refs(ir.ReferencedBy))
	assert.Len(t, f.requests, 2)
}

func TestSend_Mutations(t *testing.T) {
	c, f := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("POST /data/{doctype}/", func(w http.ResponseWriter, r *http.Request) {
			rec := f.record(r)
			rec.Body["_id"] = "new-id"
			rec.Body["_rev"] = "1-x"
			writeJSON(w, map[string]any{"id": "new-id", "rev": "1-x", "data": rec.Body})
		})
		m.HandleFunc("PUT /data/{doctype}/{id}", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			writeJSON(w, map[string]any{"id": r.PathValue("id"), "rev": "2-y"})
		})
		m.HandleFunc("DELETE /data/{doctype}/{id}", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			writeJSON(w, map[string]any{"id": r.PathValue("id"), "rev": "3-z", "deleted": true})
		})
	})
	ctx := context.Background()
	todo := ir.Document{Type: doctypeTodos, Attributes: ir.IRObject{"label": ir.IRString("x")}}

	resp, err := c.Send(ctx, query.Create(todo))
	require.NoError(t, err)
	saved, _ := resp.First()
	assert.Equal(t, "new-id", saved.ID)
	assert.Equal(t, "1-x", saved.Rev)
	assert.Equal(t, doctypeTodos, saved.Type)

	resp, err = c.Send(ctx, query.Update(saved))
	require.NoError(t, err)
	updated, _ := resp.First()
	assert.Equal(t, "2-y", updated.Rev)
	assert.Equal(t, ir.IRString("x"), updated.Get("label"))

	_, err = c.Send(ctx, query.Delete(updated))
	require.NoError(t, err)
	assert.Equal(t, "rev=2-y", f.last().Query)
}

func TestSend_ReferenceMutations(t *testing.T) {
	c, f := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("/files/{id}/relationships/referenced_by", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			w.WriteHeader(http.StatusNoContent)
		})
		m.HandleFunc("/data/{doctype}/{id}/relationships/references", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			w.WriteHeader(http.StatusNoContent)
		})
	})
	ctx := context.Background()
	file := ir.Document{Type: ir.DoctypeFiles, ID: "f1"}
	todo := ir.Document{Type: doctypeTodos, ID: "t1"}
	todoRef := []ir.Ref{todo.Ref()}

	resp, err := c.Send(ctx, query.ReferencedBy(file, todoRef))
	require.NoError(t, err)
	got, _ := resp.First()
	assert.Equal(t, todoRef, got.Refs(ir.ReferencedBy))
	assert.Equal(t, http.MethodPost, f.last().Method)
	assert.Equal(t, "/files/f1/relationships/referenced_by", f.last().Path)
	assert.Equal(t, []any{map[string]any{"type": doctypeTodos, "id": "t1"}}, f.last().Body["data"])

	resp, err = c.Send(ctx, query.UnreferencedBy(got, todoRef))
	require.NoError(t, err)
	got, _ = resp.First()
	assert.Empty(t, got.Refs(ir.ReferencedBy))
	assert.Equal(t, http.MethodDelete, f.last().Method)

	_, err = c.Send(ctx, query.ReferencesTo(todo, []ir.Ref{file.Ref()}))
	require.NoError(t, err)
	assert.Equal(t, "/data/io.cozy.todos/t1/relationships/references", f.last().Path)
}

func TestSend_APIErrorAndRevocation(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnauthorized)
	c, _ := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("GET /data/{doctype}/{id}", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			if code := int(status.Load()); code != http.StatusOK {
				http.Error(w, "invalid token", code)
				return
			}
			writeJSON(w, map[string]any{"_id": "t1"})
		})
	})
	var changes []bool
	c.SetHandlers(Handlers{OnRevocationChange: func(revoked bool) { changes = append(changes, revoked) }})
	ctx := context.Background()
	def := query.Q(doctypeTodos).GetByID("t1")

	_, err := c.Send(ctx, def)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid token")
	assert.True(t, IsUnauthorized(err))

	_, err = c.Send(ctx, def)
	require.Error(t, err)

	status.Store(http.StatusOK)
	_, err = c.Send(ctx, def)
	require.NoError(t, err)
	_, err = c.Send(ctx, def)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, changes, "only transitions are reported")
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	f := &fakeStack{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"_id": "t1"})
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithRetry(3, time.Millisecond, 2*time.Millisecond))

	resp, err := c.Send(context.Background(), query.Q(doctypeTodos).GetByID("t1"))
	require.NoError(t, err)

	assert.EqualValues(t, 3, attempts.Load())
	assert.Len(t, resp.Data, 1)
}

func TestSend_RetriesAreLogged(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"_id": "t1"})
	}))
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(srv.URL, WithRetry(2, time.Millisecond, time.Millisecond), WithLogger(logger))

	_, err := c.Send(context.Background(), query.Q(doctypeTodos).GetByID("t1"))
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "performing request")
	assert.Contains(t, logs.String(), "retrying request")
}

func TestSend_ExhaustedRetriesReportStatus(t *testing.T) {
	c, _ := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
	})

	_, err := c.Send(context.Background(), query.Q(doctypeTodos).GetByID("t1"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestLoginLogout(t *testing.T) {
	c, f := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("DELETE /auth/login", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			w.WriteHeader(http.StatusNoContent)
		})
	})
	ctx := context.Background()

	var refreshed []string
	replaced := c.SetHandlers(Handlers{OnTokenRefresh: func(tok string) { refreshed = append(refreshed, tok) }})
	assert.False(t, replaced)
	assert.True(t, c.SetHandlers(Handlers{OnTokenRefresh: func(tok string) { refreshed = append(refreshed, tok) }}))

	require.NoError(t, c.Login(ctx, &Credentials{Token: "tok-2"}))
	assert.Equal(t, "tok-2", c.Token())

	c.SetToken("tok-3")
	assert.Equal(t, []string{"tok-3"}, refreshed)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, "Bearer tok-3", f.last().Auth)
	assert.Empty(t, c.Token())

	assert.ErrorIs(t, c.Login(ctx, nil), ErrNoToken)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("not-verified"))
	require.NoError(t, err)

	got, err := TokenExpiry(signed)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	c := New("http://stack.invalid", WithToken(signed))
	assert.False(t, c.Expired(exp.Add(-time.Hour), time.Minute))
	assert.True(t, c.Expired(exp.Add(-30*time.Second), time.Minute))

	_, err = TokenExpiry("opaque")
	assert.Error(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "app"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = TokenExpiry(noExp)
	assert.ErrorIs(t, err, ErrNoExpiry)
}

func TestLink_IsTerminal(t *testing.T) {
	c, _ := setupStack(t, func(f *fakeStack, m *http.ServeMux) {
		m.HandleFunc("GET /data/{doctype}/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"_id": r.PathValue("id")})
		})
	})

	exec, err := link.Chain(Link(c))
	require.NoError(t, err)

	resp, err := exec.Execute(context.Background(), query.Q(doctypeTodos).GetByID("t9"))
	require.NoError(t, err)
	assert.Equal(t, "t9", resp.Data[0].ID)
}
