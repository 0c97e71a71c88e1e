package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"batchqc/internal/audit"
	"batchqc/internal/auth"
	"batchqc/internal/response"
	"batchqc/internal/server"
)

// User-facing notices.
const (
	NoticeLoggedIn           = "Успешная авторизация!"
	NoticeInvalidCredentials = "Неверный логин или пароль"
	NoticeAccountLocked      = "Учётная запись временно заблокирована, повторите попытку позже"
	NoticeLoggedOut          = "Вы вышли из системы"
)

func (h *Handler) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.Log
}

// LoginPage handles GET /login.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	response.Render(w, r, http.StatusOK, LoginView{})
}

// HandleLogin handles POST /login with the username and password form
// fields. Success starts a session and sends the caller to the catalog.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.Render(w, r, http.StatusBadRequest, LoginView{}, response.Warning("invalid form"))
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	view := LoginView{Username: username}

	if h.Lockout.IsLocked(username) {
		response.Render(w, r, http.StatusForbidden, view, response.Danger(NoticeAccountLocked))
		return
	}

	user, err := h.Verifier.Verify(r.Context(), username, password)
	if err == nil && user.Role != auth.RoleEmployee {
		// only employees may pass RequireAuth
		err = auth.ErrInvalidCredentials
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		locked := h.Lockout.Fail(username)
		audit.Log(*h.logger(r), audit.FromRequest(r, audit.Options{
			Username: username,
			Action:   audit.ActionLoginFailed,
			Module:   audit.ModuleAuth,
			Summary:  "Failed login",
		}))
		if locked {
			h.logger(r).Warn().Str("username", username).Dur("for", auth.AccountLockoutDuration).Msg("account locked")
		}
		response.Render(w, r, http.StatusUnauthorized, view, response.Danger(NoticeInvalidCredentials))
		return
	}
	if err != nil {
		h.logger(r).Error().Err(err).Msg("verify credentials")
		response.Err(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.Lockout.Reset(username)

	// a fresh token on every login
	if old, err := r.Cookie(server.SessionCookie); err == nil {
		h.Sessions.Delete(old.Value)
	}
	sess, err := h.Sessions.Create(user)
	if err != nil {
		h.logger(r).Error().Err(err).Msg("create session")
		response.Err(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	server.SetSessionCookie(w, sess, h.SecureCookies)

	audit.Log(*h.logger(r), audit.FromRequest(r, audit.Options{
		Username: user.Username,
		Role:     user.Role,
		Action:   audit.ActionLogin,
		Module:   audit.ModuleAuth,
		Summary:  "Logged in",
	}))
	response.Redirect(w, r, "/choose_batch", response.Success(NoticeLoggedIn))
}

// HandleLogout handles GET /logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	username := ""
	if cookie, err := r.Cookie(server.SessionCookie); err == nil {
		if sess, ok := h.Sessions.Touch(cookie.Value); ok {
			username = sess.User.Username
		}
		h.Sessions.Delete(cookie.Value)
	}
	server.ClearSessionCookie(w, h.SecureCookies)

	if username != "" {
		audit.Log(*h.logger(r), audit.FromRequest(r, audit.Options{
			Username: username,
			Action:   audit.ActionLogout,
			Module:   audit.ModuleAuth,
			Summary:  "Logged out",
		}))
	}
	response.Redirect(w, r, "/login", response.Info(NoticeLoggedOut))
}

// Index handles GET /: signed-in users go to the catalog, others to login.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(server.SessionCookie); err == nil {
		if _, ok := h.Sessions.Touch(cookie.Value); ok {
			response.Redirect(w, r, "/choose_batch")
			return
		}
	}
	response.Redirect(w, r, "/login")
}

// Health handles GET /healthz by pinging the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.logger(r).Error().Err(err).Msg("health check")
		response.Err(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	response.JSON(w, map[string]string{"status": "ok"})
}
