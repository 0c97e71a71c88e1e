package audit_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchqc/internal/audit"
)

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := httptest.NewRequest("POST", "/passport/101", nil)
	r.Header.Set("User-Agent", "test-agent")
	audit.Log(log, audit.FromRequest(r, audit.Options{
		Username:   "employee",
		Role:       "employee",
		Action:     audit.ActionFinalize,
		Module:     audit.ModuleReport,
		RecordID:   "101",
		Summary:    "Final control recorded for CU-101",
		AfterValue: map[string]bool{"batch_good": true},
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, true, line["audit"])
	assert.Equal(t, "employee", line["username"])
	assert.Equal(t, "employee", line["role"])
	assert.Equal(t, "FINALIZE", line["action"])
	assert.Equal(t, "101", line["record_id"])
	assert.Equal(t, "192.0.2.1", line["ip"])
	assert.Equal(t, "test-agent", line["user_agent"])
	assert.Equal(t, map[string]any{"batch_good": true}, line["after"])
	assert.Equal(t, "Final control recorded for CU-101", line["message"])
}

func TestResolveClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.0.2.10:5123", nil, "192.0.2.10"},
		{"ipv6 remote addr", "[::1]:5123", nil, "::1"},
		{"forwarded for from untrusted peer", "192.0.2.10:5123", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.10"},
		{"real ip from untrusted peer", "192.0.2.10:5123", map[string]string{"X-Real-IP": "198.51.100.2"}, "192.0.2.10"},
		{"forwarded for from trusted proxy", "10.0.0.5:5123", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"spoofed hop before proxy", "10.0.0.5:5123", map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.7"}, "203.0.113.7"},
		{"real ip from trusted proxy", "10.0.0.5:5123", map[string]string{"X-Real-IP": " 198.51.100.2 "}, "198.51.100.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, audit.ResolveClientIP(r, trusted))
		})
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:5123"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "192.0.2.10", audit.GetClientIP(r))

	r = r.WithContext(audit.WithClientIP(r.Context(), "198.51.100.9"))
	assert.Equal(t, "198.51.100.9", audit.GetClientIP(r))
}
