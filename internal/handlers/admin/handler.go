package admin

import (
	"github.com/rs/zerolog"

	"batchqc/internal/auth"
	"batchqc/internal/store"
)

// Handler holds dependencies for login, logout and service endpoints.
type Handler struct {
	Verifier auth.Verifier
	Sessions *auth.Sessions
	Lockout  *auth.Lockout
	Store    store.Store
	Log      zerolog.Logger

	SecureCookies bool
}

// LoginView is the login screen.
type LoginView struct {
	Username string `json:"username"`
}
