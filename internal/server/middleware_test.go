package server

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchqc/internal/audit"
	"batchqc/internal/auth"
	"batchqc/internal/models"
	"batchqc/internal/response"
)

func TestGzipMiddleware(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Hello World"))
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Error("Expected Content-Encoding: gzip")
	}

	gr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	defer gr.Close()

	body, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("Failed to read gzip body: %v", err)
	}

	if string(body) != "Hello World" {
		t.Errorf("Expected 'Hello World', got '%s'", string(body))
	}
}

func TestGzipMiddleware_SkipsDownloadsAndUpgrades(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("raw"))
	}))

	for _, req := range []*http.Request{
		httptest.NewRequest("GET", "/download_report/101", nil),
		httptest.NewRequest("GET", "/ws", nil),
		httptest.NewRequest("GET", "/reports", nil),
	} {
		req.Header.Set("Accept-Encoding", "gzip")
		if req.URL.Path == "/ws" {
			req.Header.Set("Upgrade", "websocket")
		}
		if req.URL.Path == "/reports" {
			req.Header.Del("Accept-Encoding")
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"), req.URL.Path)
		assert.Equal(t, "raw", w.Body.String(), req.URL.Path)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	handler := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/choose_batch", nil))

	seenID := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, seenID)
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var inner map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	assert.Equal(t, seenID, inner["request_id"])

	var line map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &line))
	assert.Equal(t, seenID, line["request_id"])
	assert.Equal(t, "/choose_batch", line["path"])
	assert.Equal(t, "192.0.2.1", line["ip"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
}

func TestRecover(t *testing.T) {
	handler := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func TestRequireAuth(t *testing.T) {
	sessions := auth.NewSessions(time.Hour, 30*time.Minute, nil)
	var gotUser string
	handler := RequireAuth(sessions, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = Username(r.Context())
	}))

	t.Run("no cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/choose_batch", nil)
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))

		next := httptest.NewRequest("GET", "/login", nil)
		for _, c := range w.Result().Cookies() {
			next.AddCookie(c)
		}
		assert.Equal(t, []models.Notice{response.Warning(NoticeLoginRequired)}, response.Pending(next))
	})

	t.Run("unknown token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/choose_batch", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale"})
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusSeeOther, w.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		sess, err := sessions.Create(auth.User{Username: "guest", Role: "viewer"})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/choose_batch", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: sess.Token})
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusSeeOther, w.Code)
	})

	t.Run("valid session", func(t *testing.T) {
		sess, err := sessions.Create(auth.User{Username: "employee", Role: auth.RoleEmployee})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/choose_batch", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: sess.Token})
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "employee", gotUser)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, sess.Token, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})
}

func TestSameOrigin(t *testing.T) {
	handler := SameOrigin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name   string
		method string
		origin string
		want   int
	}{
		{"get from anywhere", "GET", "https://evil.example", http.StatusOK},
		{"post without origin", "POST", "", http.StatusOK},
		{"post same origin", "POST", "http://example.com", http.StatusOK},
		{"post cross origin", "POST", "https://evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/passport/101", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(func() time.Time { return now })
	handler := LoginRateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	post := func() int {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/login", nil))
		return w.Code
	}

	for i := 0; i < LoginRateLimit; i++ {
		require.Equal(t, http.StatusOK, post(), "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, post())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/login", nil))
	assert.Equal(t, http.StatusOK, w.Code, "GET is not limited")

	now = now.Add(LoginRateWindow + time.Second)
	assert.Equal(t, http.StatusOK, post())
}

func TestLoginRateLimitIgnoresForwardedForFromClients(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(func() time.Time { return now })
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		ClientIP(nil),
		LoginRateLimitMiddleware(rl),
	)

	post := func(i int) int {
		r := httptest.NewRequest("POST", "/login", nil)
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}
	for i := 0; i < LoginRateLimit; i++ {
		require.Equal(t, http.StatusOK, post(i), "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, post(LoginRateLimit))
}

func TestClientIPTrustedProxy(t *testing.T) {
	var seen string
	handler := ClientIP([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = audit.GetClientIP(r)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:4444"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "203.0.113.7", seen)

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.50:4444"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "192.0.2.50", seen)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}
