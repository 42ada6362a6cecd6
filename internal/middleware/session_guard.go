package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"scribe-console/internal/domain"
	"scribe-console/internal/guard"
	"scribe-console/internal/observability"
)

type contextKey string

const adminKey contextKey = "admin"

// SessionGuard verifies the session once per request before the protected
// handler runs. Each request to the local API stands for one mount of a
// protected page. An invalid session runs onReject, when set, and is sent to
// loginPath.
func SessionGuard(verifier guard.Verifier, loginPath string, onReject func(ctx context.Context)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gate := guard.NewGate(verifier)

			status, res := gate.Enter(r.Context())
			switch status {
			case guard.Allowed:
				next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), res.Admin)))
			case guard.Redirected:
				observability.FromContext(r.Context()).Info("session rejected",
					slog.String("reason", res.Reason),
					slog.String("path", r.URL.Path))
				if onReject != nil {
					onReject(r.Context())
				}
				RedirectToLogin(w, r, loginPath)
			default:
				// Client went away before verification settled.
			}
		})
	}
}

// RedirectToLogin sends the client to the login entry point: 302 for
// browsers, 401 with a location field for JSON clients.
func RedirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":    "Session expired",
			"location": loginPath,
		})
		return
	}
	http.Redirect(w, r, loginPath, http.StatusFound)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func GetAdmin(ctx context.Context) (*domain.Admin, bool) {
	admin, ok := ctx.Value(adminKey).(*domain.Admin)
	return admin, ok && admin != nil
}

func WithAdmin(ctx context.Context, admin *domain.Admin) context.Context {
	return context.WithValue(ctx, adminKey, admin)
}
