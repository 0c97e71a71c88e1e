// Package audit writes structured audit lines for security-relevant and
// record-changing actions.
package audit

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog"
)

// Action constants.
const (
	ActionLogin       = "LOGIN"
	ActionLoginFailed = "LOGIN_FAILED"
	ActionLogout      = "LOGOUT"
	ActionFinalize    = "FINALIZE"
	ActionExport      = "EXPORT"
)

// Modules.
const (
	ModuleAuth   = "auth"
	ModuleReport = "final_report"
)

// Options contains all fields of an audit entry.
type Options struct {
	Username   string
	Role       string
	Action     string
	Module     string
	RecordID   string
	Summary    string
	AfterValue interface{}
	IPAddress  string
	UserAgent  string
}

// FromRequest fills the client address and user agent of r.
func FromRequest(r *http.Request, opts Options) Options {
	opts.IPAddress = GetClientIP(r)
	opts.UserAgent = r.UserAgent()
	return opts
}

// Log writes opts as one info-level line tagged audit=true.
func Log(log zerolog.Logger, opts Options) {
	ev := log.Info().
		Bool("audit", true).
		Str("username", opts.Username).
		Str("action", opts.Action).
		Str("module", opts.Module)
	if opts.Role != "" {
		ev = ev.Str("role", opts.Role)
	}
	if opts.RecordID != "" {
		ev = ev.Str("record_id", opts.RecordID)
	}
	if opts.IPAddress != "" {
		ev = ev.Str("ip", opts.IPAddress)
	}
	if opts.UserAgent != "" {
		ev = ev.Str("user_agent", opts.UserAgent)
	}
	if opts.AfterValue != nil {
		ev = ev.Interface("after", opts.AfterValue)
	}
	ev.Msg(opts.Summary)
}

type clientIPKey struct{}

// WithClientIP stores the resolved client address in ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// GetClientIP returns the address stored by WithClientIP, or the peer
// address of r. Forwarding headers are never read here.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

// ResolveClientIP returns the client address of r. X-Forwarded-For and
// X-Real-IP are believed only when the peer is one of trusted; the
// forwarded chain is then read right to left up to the first untrusted hop.
func ResolveClientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := remoteHost(r)
	if !isTrusted(remote, trusted) {
		return remote
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !isTrusted(hop, trusted) || i == 0 {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return strings.Trim(ip, "[]")
}
