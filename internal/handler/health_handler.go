package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"scribe-console/internal/domain"
	"scribe-console/internal/realtime"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Ready reports the credential store and the realtime channel. Only the
// store decides readiness: without live updates views still load.
func Ready(store domain.CredentialStore, channel ChannelStater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		storeCheck := checkCredentialStore(ctx, store)
		channelCheck := checkChannel(channel)

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"credential_store": storeCheck,
				"realtime":         channelCheck,
			},
		}

		status := http.StatusOK
		response["status"] = "ready"
		if storeCheck.Status != "up" {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}

		writeJSON(w, status, response)
	}
}

func checkCredentialStore(ctx context.Context, store domain.CredentialStore) HealthCheckResult {
	start := time.Now()
	session, err := store.Load(ctx)
	latency := time.Since(start)

	if err != nil && !errors.Is(err, domain.ErrCredentialNotFound) {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"has_credential": session.HasToken(),
		},
	}
}

func checkChannel(channel ChannelStater) HealthCheckResult {
	state := channel.State()

	result := HealthCheckResult{
		Status:   "up",
		Metadata: map[string]any{"state": state.String()},
	}
	switch state {
	case realtime.StateConnected:
	case realtime.StateUninitialized:
		result.Status = "idle"
	case realtime.StateDisconnected:
		result.Status = "down"
		result.Error = "reconnection attempts exhausted"
	default:
		result.Status = "degraded"
	}
	return result
}
