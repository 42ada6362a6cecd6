package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"scribe-console/internal/domain"
	"scribe-console/internal/observability"
)

// SessionService is what the auth and session endpoints need from the token
// lifecycle. *service.TokenManager satisfies it.
type SessionService interface {
	Login(ctx context.Context, email, password string) (domain.Session, error)
	Token(ctx context.Context) (string, bool)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*domain.Admin, error)
	Session(ctx context.Context) domain.Session
	IsExpiringSoon(ctx context.Context) bool
	ClearToken(ctx context.Context) error
}

// AuthHandler handles the login entry point and logout.
type AuthHandler struct {
	sessions SessionService
	// onLogout tears down what belongs to the ended session.
	onLogout func(ctx context.Context)
}

func NewAuthHandler(sessions SessionService, onLogout func(ctx context.Context)) *AuthHandler {
	if onLogout == nil {
		onLogout = func(context.Context) {}
	}
	return &AuthHandler{sessions: sessions, onLogout: onLogout}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success   bool          `json:"success"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Admin     *domain.Admin `json:"admin,omitempty"`
}

type loginEntryResponse struct {
	Authenticated bool     `json:"authenticated"`
	Method        string   `json:"method"`
	Path          string   `json:"path"`
	Fields        []string `json:"fields"`
}

// LoginPage describes how to log in and whether a credential is held.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, loginEntryResponse{
		Authenticated: h.sessions.Session(r.Context()).HasToken(),
		Method:        http.MethodPost,
		Path:          r.URL.Path,
		Fields:        []string{"email", "password"},
	})
}

// Login accepts JSON or a urlencoded form.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		log := observability.FromContext(r.Context())
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Email and password are required")
		case errors.Is(err, domain.ErrUnauthorized):
			log.Info("login rejected")
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
		default:
			log.Error("login failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "Login failed")
		}
		return
	}

	resp := LoginResponse{Success: true}
	if !session.ExpiresAt.IsZero() {
		resp.ExpiresAt = &session.ExpiresAt
	}
	if admin, err := h.sessions.Profile(r.Context()); err == nil {
		resp.Admin = admin
	} else {
		observability.FromContext(r.Context()).Warn("profile unavailable after login", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Logout ends the session. It succeeds even when the backend cannot be
// reached; the local credential is always dropped.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		observability.FromContext(r.Context()).Error("failed to clear credential", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}

	h.onLogout(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func decodeLogin(r *http.Request) (LoginRequest, error) {
	var req LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}

	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}
