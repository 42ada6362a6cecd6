package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"scribe-console/internal/domain"
	"scribe-console/internal/middleware"
	"scribe-console/internal/observability"
	"scribe-console/internal/view"

	"github.com/go-chi/chi/v5"
)

// ViewHandler serves view snapshots. A view is mounted by the first request
// that reads it and stays mounted, kept current by live events, until logout
// or a credential failure.
type ViewHandler struct {
	views     *view.Set
	sessions  SessionService
	loginPath string
	// onCredentialLoss tears down the session's views and channel.
	onCredentialLoss func(ctx context.Context)
}

// NewViewHandler serves views from views. onCredentialLoss runs when a view
// fails for lack of a valid credential; nil unmounts every view.
func NewViewHandler(views *view.Set, sessions SessionService, loginPath string, onCredentialLoss func(ctx context.Context)) *ViewHandler {
	if onCredentialLoss == nil {
		onCredentialLoss = func(context.Context) { views.UnmountAll() }
	}
	return &ViewHandler{views: views, sessions: sessions, loginPath: loginPath, onCredentialLoss: onCredentialLoss}
}

// Get applies the URL query to the view and returns its state.
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ctx := observability.WithView(r.Context(), v.Name())

	if err := v.Apply(ctx, r.URL.Query()); errors.Is(err, domain.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !v.Mounted() {
		if err := v.Mount(ctx); err != nil {
			observability.FromContext(ctx).Warn("view mount fetch failed", slog.String("error", err.Error()))
		}
	}

	h.respond(w, r, v)
}

// Refresh forces a visible refresh of the view.
func (h *ViewHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ctx := observability.WithView(r.Context(), v.Name())

	var err error
	if v.Mounted() {
		err = v.Refresh(ctx, false)
	} else {
		err = v.Mount(ctx)
	}
	if err != nil {
		observability.FromContext(ctx).Warn("view refresh failed", slog.String("error", err.Error()))
	}

	h.respond(w, r, v)
}

// List names the available views.
func (h *ViewHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"views": h.views.Names()})
}

func (h *ViewHandler) lookup(w http.ResponseWriter, r *http.Request) (view.View, bool) {
	v, ok := h.views.Get(chi.URLParam(r, "view"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown view")
	}
	return v, ok
}

// respond writes the snapshot, or, when the view failed for lack of a valid
// credential, ends the session and sends the client to log in.
func (h *ViewHandler) respond(w http.ResponseWriter, r *http.Request, v view.View) {
	snap := v.Snapshot()

	if domain.IsCredentialError(snap.Err) {
		observability.FromContext(r.Context()).Info("view lost its credential",
			slog.String("view", v.Name()),
			slog.String("error", snap.Err.Error()))
		endSession(w, r, h.sessions, h.loginPath, h.onCredentialLoss)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// endSession drops the credential, tears down what belonged to the session
// and sends the client to the login entry point.
func endSession(w http.ResponseWriter, r *http.Request, sessions SessionService, loginPath string, teardown func(ctx context.Context)) {
	ctx := r.Context()
	teardown(ctx)
	if err := sessions.ClearToken(ctx); err != nil {
		observability.FromContext(ctx).Error("failed to clear credential", slog.String("error", err.Error()))
	}
	middleware.RedirectToLogin(w, r, loginPath)
}
