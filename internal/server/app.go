package server

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"batchqc/internal/auth"
	"batchqc/internal/store"
	"batchqc/internal/websocket"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	CtxUsername ContextKey = "username"
	CtxRole     ContextKey = "role"
)

// SessionCookie holds the opaque session token.
const SessionCookie = "batchqc_session"

// App holds shared dependencies for the application.
type App struct {
	Store    store.Store
	Hub      *websocket.Hub
	Sessions *auth.Sessions
	Verifier auth.Verifier
	Lockout  *auth.Lockout
	Limiter  *RateLimiter
	Log      zerolog.Logger

	SecureCookies      bool
	TrustedProxies     []netip.Prefix
	ControllerFallback string
	Location           *time.Location
	Now                func() time.Time
}

// Username returns the authenticated username stored by RequireAuth.
func Username(ctx context.Context) string {
	u, _ := ctx.Value(CtxUsername).(string)
	return u
}

// Role returns the role of the authenticated user stored by RequireAuth.
func Role(ctx context.Context) string {
	role, _ := ctx.Value(CtxRole).(string)
	return role
}

// SetSessionCookie issues the session cookie for sess.
func SetSessionCookie(w http.ResponseWriter, sess auth.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

// ClearSessionCookie expires the session cookie in the browser.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
