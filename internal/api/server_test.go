package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/todos/internal/domain"
	"github.com/pbaille/todos/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.Open(store.DriverCGO, filepath.Join(t.TempDir(), "todos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ts := httptest.NewServer(New(st, "", quietLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreate(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, "POST", ts.URL+"/items", `{"text":"  Buy milk "}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	item := decode[domain.Item](t, resp)
	assert.Positive(t, item.ID)
	assert.Equal(t, "Buy milk", item.Text)
	assert.False(t, item.CreatedAt.IsZero())
}

func TestCreate_EmptyText(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{`{"text":""}`, `{"text":"   "}`, `{}`} {
		resp := do(t, "POST", ts.URL+"/items", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, map[string]string{"error": "text is required"}, decode[map[string]string](t, resp))
	}

	resp := do(t, "POST", ts.URL+"/items", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	list := decode[[]domain.Item](t, do(t, "GET", ts.URL+"/items", ""))
	assert.Empty(t, list)
}

func TestGet(t *testing.T) {
	ts := newTestServer(t)

	created := decode[domain.Item](t, do(t, "POST", ts.URL+"/items", `{"text":"read me"}`))
	url := ts.URL + "/items/" + itoa(created.ID)

	first := do(t, "GET", url, "")
	require.Equal(t, http.StatusOK, first.StatusCode)
	a, err := io.ReadAll(first.Body)
	require.NoError(t, err)

	second := do(t, "GET", url, "")
	b, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "repeated GET must be identical")

	var got domain.Item
	require.NoError(t, json.Unmarshal(a, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "read me", got.Text)
}

func TestGet_Errors(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, "GET", ts.URL+"/items/999", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, "GET", ts.URL+"/items/abc", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, "GET", ts.URL+"/items/0", "").StatusCode)
}

func TestUpdate(t *testing.T) {
	ts := newTestServer(t)

	created := decode[domain.Item](t, do(t, "POST", ts.URL+"/api/todos", `{"text":"draft"}`))
	url := ts.URL + "/api/todos/" + itoa(created.ID)

	resp := do(t, "PUT", url, `{"text":"final"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[domain.Item](t, resp)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "final", updated.Text)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	assert.Equal(t, http.StatusBadRequest, do(t, "PUT", url, `{"text":" "}`).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, "PUT", ts.URL+"/api/todos/999", `{"text":"x"}`).StatusCode)
}

func TestUpdate_Errors(t *testing.T) {
	ts := newTestServer(t)

	created := decode[domain.Item](t, do(t, "POST", ts.URL+"/items", `{"text":"stable"}`))
	url := ts.URL + "/items/" + itoa(created.ID)

	tests := []struct {
		name   string
		url    string
		body   string
		status int
		msg    string
	}{
		{name: "malformed body", url: url, body: `{"text":`, status: http.StatusBadRequest, msg: "invalid request body"},
		{name: "non-json body", url: url, body: `text=x`, status: http.StatusBadRequest, msg: "invalid request body"},
		{name: "wrong text type", url: url, body: `{"text":42}`, status: http.StatusBadRequest, msg: "invalid request body"},
		{name: "byte order mark only", url: url, body: `{"text":"\ufeff"}`, status: http.StatusBadRequest, msg: "text is required"},
		{name: "non-integer id", url: ts.URL + "/items/abc", body: `{"text":"x"}`, status: http.StatusBadRequest, msg: "invalid id"},
		{name: "zero id", url: ts.URL + "/items/0", body: `{"text":"x"}`, status: http.StatusBadRequest, msg: "invalid id"},
		{name: "negative id", url: ts.URL + "/items/-3", body: `{"text":"x"}`, status: http.StatusBadRequest, msg: "invalid id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, "PUT", tt.url, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, map[string]string{"error": tt.msg}, decode[map[string]string](t, resp))
		})
	}

	got := decode[domain.Item](t, do(t, "GET", url, ""))
	assert.Equal(t, "stable", got.Text)
}

func TestCreate_KeepsSubmittedText(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, "POST", ts.URL+"/items", `{"text":" cafe\u0301 "}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	item := decode[domain.Item](t, resp)
	assert.Equal(t, "cafe\u0301", item.Text)

	resp = do(t, "POST", ts.URL+"/items", `{"text":"\ufeff"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDelete_Twice(t *testing.T) {
	ts := newTestServer(t)

	created := decode[domain.Item](t, do(t, "POST", ts.URL+"/items", `{"text":"bye"}`))
	url := ts.URL + "/items/" + itoa(created.ID)

	first := do(t, "DELETE", url, "")
	assert.Equal(t, http.StatusNoContent, first.StatusCode)
	body, err := io.ReadAll(first.Body)
	require.NoError(t, err)
	assert.Empty(t, body)

	assert.Equal(t, http.StatusNotFound, do(t, "DELETE", url, "").StatusCode)
}

func TestList_NewestFirst(t *testing.T) {
	ts := newTestServer(t)

	var ids []int64
	for _, text := range []string{"one", "two", "three"} {
		item := decode[domain.Item](t, do(t, "POST", ts.URL+"/items", `{"text":"`+text+`"}`))
		ids = append(ids, item.ID)
	}
	require.Equal(t, http.StatusNoContent, do(t, "DELETE", ts.URL+"/items/"+itoa(ids[0]), "").StatusCode)

	resp := do(t, "GET", ts.URL+"/api/todos", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]domain.Item](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].Text)
	assert.Equal(t, "two", list[1].Text)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	do(t, "POST", ts.URL+"/items", `{"text":"x"}`)

	resp := do(t, "GET", ts.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok", "items": float64(1)}, decode[map[string]any](t, resp))
}

func TestMiddleware(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, "OPTIONS", ts.URL+"/items", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest("GET", ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

// brokenStore fails every call the way a lost connection would.
type brokenStore struct{ err error }

func (b brokenStore) List(context.Context) ([]domain.Item, error) { return nil, b.err }
func (b brokenStore) Get(context.Context, int64) (*domain.Item, error) { return nil, b.err }
func (b brokenStore) Create(context.Context, string) (*domain.Item, error) {
	return nil, b.err
}
func (b brokenStore) Update(context.Context, int64, string) (*domain.Item, error) {
	return nil, b.err
}
func (b brokenStore) Delete(context.Context, int64) error { return b.err }
func (b brokenStore) Count(context.Context) (int, error) { return 0, b.err }

func TestStorageFailure(t *testing.T) {
	cause := &domain.StorageError{Op: "query", Err: errors.New("connection refused")}
	ts := httptest.NewServer(New(brokenStore{err: cause}, "", quietLogger()).Handler())
	defer ts.Close()

	cases := []struct{ method, path, body string }{
		{"GET", "/items", ""},
		{"GET", "/items/1", ""},
		{"POST", "/items", `{"text":"x"}`},
		{"PUT", "/items/1", `{"text":"x"}`},
		{"DELETE", "/items/1", ""},
		{"GET", "/health", ""},
		{"GET", "/view/list", ""},
	}
	for _, c := range cases {
		resp := do(t, c.method, ts.URL+c.path, c.body)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, c.method+" "+c.path)
		assert.Equal(t, map[string]string{"error": "query: connection refused"}, decode[map[string]string](t, resp))
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.Join(errors.New("create"), domain.ErrValidation)))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestServe_Shutdown(t *testing.T) {
	st, err := store.Open(store.DriverPure, ":memory:")
	require.NoError(t, err)
	defer st.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- New(st, "", quietLogger()).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond, "server never answered /health")

	resp := do(t, "POST", base+"/items", `{"text":"served"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	select {
	case err := <-done:
		t.Fatalf("Serve returned before cancel: %v", err)
	default:
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = New(brokenStore{}, ln.Addr().String(), quietLogger()).Run(context.Background())
	assert.ErrorContains(t, err, "listen")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
