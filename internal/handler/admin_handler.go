package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scribe-console/internal/backend"
	"scribe-console/internal/domain"
	"scribe-console/internal/observability"
	"scribe-console/internal/view"

	"github.com/go-chi/chi/v5"
)

// AdminAPI is the write side of the backend. *backend.Client satisfies it.
type AdminAPI interface {
	DeleteUser(ctx context.Context, token, id string) error
	SendNotification(ctx context.Context, token string, req domain.NotificationRequest) (domain.NotificationReceipt, error)
	NotificationRecipients(ctx context.Context, token, audience string, userIDs []string) (int, error)
}

// AdminHandler runs operator actions against the backend. A successful
// change refreshes the mounted views that show it.
type AdminHandler struct {
	api       AdminAPI
	sessions  SessionService
	views     *view.Set
	loginPath string
	// onCredentialLoss tears down the session's views and channel.
	onCredentialLoss func(ctx context.Context)
	now              func() time.Time
}

func NewAdminHandler(api AdminAPI, sessions SessionService, views *view.Set, loginPath string, onCredentialLoss func(ctx context.Context)) *AdminHandler {
	if onCredentialLoss == nil {
		onCredentialLoss = func(context.Context) { views.UnmountAll() }
	}
	return &AdminHandler{
		api:              api,
		sessions:         sessions,
		views:            views,
		loginPath:        loginPath,
		onCredentialLoss: onCredentialLoss,
		now:              time.Now,
	}
}

// DeleteUser removes a user and refreshes the users and dashboard views.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.api.DeleteUser(r.Context(), token, id); err != nil {
		h.fail(w, r, err, "Failed to delete user")
		return
	}

	observability.FromContext(r.Context()).Info("user deleted", slog.String("user_id", id))
	h.refresh(r.Context(), view.Users, view.Dashboard)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SendNotification sends a notification now or schedules it, then refreshes
// the notifications view.
func (h *AdminHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Normalize(h.now()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, ok := h.token(w, r)
	if !ok {
		return
	}

	receipt, err := h.api.SendNotification(r.Context(), token, req)
	if err != nil {
		h.fail(w, r, err, "Failed to send notification")
		return
	}

	observability.FromContext(r.Context()).Info("notification sent",
		slog.String("audience", req.Audience),
		slog.String("status", receipt.Status))
	h.refresh(r.Context(), view.Notifications)
	writeJSON(w, http.StatusOK, receipt)
}

// Recipients counts who a notification would reach. Query: audience and,
// for the user audience, a comma separated targetUserIds.
func (h *AdminHandler) Recipients(w http.ResponseWriter, r *http.Request) {
	audience := r.URL.Query().Get("audience")
	if audience == "" {
		audience = domain.AudienceAll
	}
	var userIDs []string
	for _, id := range strings.Split(r.URL.Query().Get("targetUserIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			userIDs = append(userIDs, id)
		}
	}

	// The user audience with nobody selected reaches nobody.
	if audience == domain.AudienceUser && len(userIDs) == 0 {
		writeJSON(w, http.StatusOK, map[string]int{"count": 0})
		return
	}

	token, ok := h.token(w, r)
	if !ok {
		return
	}

	count, err := h.api.NotificationRecipients(r.Context(), token, audience, userIDs)
	if err != nil {
		h.fail(w, r, err, "Failed to count recipients")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *AdminHandler) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := h.sessions.Token(r.Context())
	if !ok {
		endSession(w, r, h.sessions, h.loginPath, h.onCredentialLoss)
	}
	return token, ok
}

// refresh performs a visible refresh of each named view that is mounted.
// Failures stay in the view's state.
func (h *AdminHandler) refresh(ctx context.Context, names ...string) {
	for _, name := range names {
		v, ok := h.views.Get(name)
		if !ok || !v.Mounted() {
			continue
		}
		if err := v.Refresh(observability.WithView(ctx, name), false); err != nil {
			observability.FromContext(ctx).Warn("refresh after change failed",
				slog.String("view", name),
				slog.String("error", err.Error()))
		}
	}
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	log := observability.FromContext(r.Context())

	var statusErr *backend.StatusError
	switch {
	case domain.IsCredentialError(err):
		log.Info("action lost its credential", slog.String("error", err.Error()))
		endSession(w, r, h.sessions, h.loginPath, h.onCredentialLoss)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError:
		message := statusErr.Message
		if message == "" {
			message = fallback
		}
		writeError(w, statusErr.StatusCode, message)
	default:
		log.Error(strings.ToLower(fallback), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, fallback)
	}
}
