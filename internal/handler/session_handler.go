package handler

import (
	"net/http"
	"time"

	"scribe-console/internal/domain"
	"scribe-console/internal/middleware"
	"scribe-console/internal/realtime"
)

// ChannelStater reports the shared channel's state. *realtime.Manager
// satisfies it.
type ChannelStater interface {
	State() realtime.State
}

type SessionHandler struct {
	sessions SessionService
	channel  ChannelStater
}

func NewSessionHandler(sessions SessionService, channel ChannelStater) *SessionHandler {
	return &SessionHandler{sessions: sessions, channel: channel}
}

type SessionResponse struct {
	Admin        *domain.Admin `json:"admin,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	ExpiringSoon bool          `json:"expiring_soon"`
	Realtime     string        `json:"realtime"`
}

// Get describes the verified session. It runs behind SessionGuard, so the
// admin comes from the verification that admitted the request.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := SessionResponse{
		ExpiringSoon: h.sessions.IsExpiringSoon(ctx),
		Realtime:     h.channel.State().String(),
	}
	if admin, ok := middleware.GetAdmin(ctx); ok {
		resp.Admin = admin
	} else if admin, err := h.sessions.Profile(ctx); err == nil {
		resp.Admin = admin
	}
	if s := h.sessions.Session(ctx); !s.ExpiresAt.IsZero() {
		resp.ExpiresAt = &s.ExpiresAt
	}

	writeJSON(w, http.StatusOK, resp)
}
