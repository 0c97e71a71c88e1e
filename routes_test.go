package main

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchqc/internal/auth"
	"batchqc/internal/config"
	"batchqc/internal/export"
	"batchqc/internal/handlers/admin"
	"batchqc/internal/handlers/quality"
	"batchqc/internal/models"
	"batchqc/internal/server"
	"batchqc/internal/testutil"
	"batchqc/internal/websocket"
)

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Notices []models.Notice `json:"notices"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	hash, err := auth.HashPassword("secret-pass")
	require.NoError(t, err)
	verifier, err := auth.NewStaticVerifier([]auth.Credential{{Username: "employee", PasswordHash: hash}})
	require.NoError(t, err)

	app := &server.App{
		Store:              testutil.NewMemoryStore(t),
		Hub:                websocket.NewHub(zerolog.Nop()),
		Sessions:           auth.NewSessions(time.Hour, 30*time.Minute, time.Now),
		Verifier:           verifier,
		Lockout:            auth.NewLockout(time.Now),
		Limiter:            server.NewRateLimiter(time.Now),
		Log:                zerolog.Nop(),
		ControllerFallback: "Иванов И.И.",
		Now:                time.Now,
	}
	ts := httptest.NewServer(newRouter(app))
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func messages(notices []models.Notice) []string {
	out := make([]string, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Message)
	}
	return out
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t)

	for _, path := range []string{"/choose_batch", "/passport/101", "/report/101", "/download_report/101", "/reports"} {
		resp, err := c.Get(ts.URL + path)
		require.NoError(t, err, path)
		assert.Equal(t, "/login", resp.Request.URL.Path, path)
		env := decode(t, resp)
		assert.Contains(t, messages(env.Notices), server.NoticeLoginRequired, path)
	}
}

func TestEndToEndFinalControl(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t)

	resp, err := c.PostForm(ts.URL+"/login", url.Values{"username": {"employee"}, "password": {"secret-pass"}})
	require.NoError(t, err)
	assert.Equal(t, "/choose_batch", resp.Request.URL.Path)
	env := decode(t, resp)
	assert.Contains(t, messages(env.Notices), admin.NoticeLoggedIn)

	resp, err = c.PostForm(ts.URL+"/choose_batch", url.Values{"batch_date": {"2025-03-01"}})
	require.NoError(t, err)
	env = decode(t, resp)
	var catalog quality.CatalogView
	require.NoError(t, json.Unmarshal(env.Data, &catalog))
	require.NotEmpty(t, catalog.Batches)
	assert.Equal(t, int64(101), catalog.Batches[0].ID)

	resp, err = c.PostForm(ts.URL+"/passport/101", url.Values{
		"spatial_dims":   {"10x20x30"},
		"visual_color":   {"red"},
		"visual_surface": {"smooth"},
		"density":        {"8.9"},
		"boiling_point":  {"2560"},
		"melting_point":  {"1085"},
		"batch_good":     {"on"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/report/101", resp.Request.URL.Path)
	env = decode(t, resp)
	var report quality.ReportView
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.NotNil(t, report.Report)
	assert.Equal(t, "employee", report.Report.ControlledBy)
	assert.True(t, report.Report.BatchGood)

	resp, err = c.Get(ts.URL + "/download_report/101")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType(export.FormatXLSX), resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	resp, err = c.Get(ts.URL + "/reports")
	require.NoError(t, err)
	env = decode(t, resp)
	var index quality.ReportIndexView
	require.NoError(t, json.Unmarshal(env.Data, &index))
	require.Len(t, index.Reports, 1)
	assert.Equal(t, int64(101), index.Reports[0].BatchID)

	resp, err = c.Get(ts.URL + "/logout")
	require.NoError(t, err)
	assert.Equal(t, "/login", resp.Request.URL.Path)
	env = decode(t, resp)
	assert.Contains(t, messages(env.Notices), admin.NoticeLoggedOut)

	resp, err = c.Get(ts.URL + "/reports")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/login", resp.Request.URL.Path)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t)

	resp, err := c.PostForm(ts.URL+"/login", url.Values{"username": {"employee"}, "password": {"secret-pass"}})
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/report/101", nil)
	require.NoError(t, err)
	resp, err = c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET", resp.Header.Get("Allow"))

	resp, err = c.Get(ts.URL + "/unknown/1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCrossOriginPostRejected(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/login", strings.NewReader("username=employee&password=secret-pass"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "http://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCredentialsFallback(t *testing.T) {
	t.Setenv("BATCHQC_EMPLOYEE_PASSWORD", "plant-pass-1")
	cfg := config.Default()

	creds, err := credentials(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "employee", creds[0].Username)

	v, err := auth.NewStaticVerifier(creds)
	require.NoError(t, err)
	u, err := v.Verify(t.Context(), "employee", "plant-pass-1")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleEmployee, u.Role)
}
