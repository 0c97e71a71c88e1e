// Package testutil provides seeded stores and request helpers for handler
// tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"batchqc/internal/models"
	"batchqc/internal/response"
	"batchqc/internal/seed"
	"batchqc/internal/server"
	"batchqc/internal/store"
	"batchqc/internal/store/memory"
	"batchqc/internal/store/sqlite"
)

// Stores returns constructors for every store that runs without external
// services, keyed by driver name. Each store holds the default fixtures.
func Stores() map[string]func(t *testing.T) store.Store {
	return map[string]func(t *testing.T) store.Store{
		"memory": NewMemoryStore,
		"sqlite": NewSQLiteStore,
	}
}

// NewMemoryStore returns a seeded in-memory store.
func NewMemoryStore(t *testing.T) store.Store {
	t.Helper()
	s := memory.New()
	Seed(t, s)
	return s
}

// NewSQLiteStore returns a seeded SQLite store in a temporary directory.
func NewSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "batchqc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	Seed(t, s)
	return s
}

// Seed loads the embedded fixtures (batches 101, 102 and 103) into s.
func Seed(t *testing.T, s store.Store) {
	t.Helper()
	batches, err := seed.Default()
	require.NoError(t, err)
	_, err = seed.Apply(context.Background(), s, batches)
	require.NoError(t, err)
}

// FormRequest builds a request with form as the urlencoded body.
func FormRequest(method, target string, form url.Values) *http.Request {
	if form == nil {
		return httptest.NewRequest(method, target, nil)
	}
	r := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

// AsUser returns r as if RequireAuth had accepted username.
func AsUser(r *http.Request, username string) *http.Request {
	ctx := context.WithValue(r.Context(), server.CtxUsername, username)
	ctx = context.WithValue(ctx, server.CtxRole, "employee")
	return r.WithContext(ctx)
}

// DecodeView decodes a rendered view into data and returns its notices.
func DecodeView(t *testing.T, w *httptest.ResponseRecorder, data interface{}) []models.Notice {
	t.Helper()
	var env struct {
		Data    json.RawMessage `json:"data"`
		Notices []models.Notice `json:"notices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env.Notices
}

// Flashed returns the notices a response flashed for the next view.
func Flashed(w *httptest.ResponseRecorder) []models.Notice {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		if c.Name == response.FlashCookie {
			r.AddCookie(c)
		}
	}
	return response.Pending(r)
}
