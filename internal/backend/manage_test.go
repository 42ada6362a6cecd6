package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scribe-console/internal/domain"
)

func TestDeleteUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/users/u 1" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Unexpected Authorization %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := NewClient(server.URL, time.Second).DeleteUser(context.Background(), "tok", "u 1"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestDeleteUser_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"User not found"}`))
	}))
	defer server.Close()

	err := NewClient(server.URL, time.Second).DeleteUser(context.Background(), "tok", "u1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if domain.IsCredentialError(err) {
		t.Error("404 must not end the session")
	}
}

func TestDeleteUser_EmptyID(t *testing.T) {
	err := NewClient("http://unused", time.Second).DeleteUser(context.Background(), "tok", "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSendNotification_Scheduled(t *testing.T) {
	at := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/notifications" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body domain.NotificationRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if body.Audience != domain.AudienceUser || len(body.TargetUserIDs) != 2 {
			t.Errorf("Unexpected targeting %+v", body)
		}
		if body.ScheduledAt == nil || !body.ScheduledAt.Equal(at) {
			t.Errorf("Unexpected scheduledAt %v", body.ScheduledAt)
		}
		w.Write([]byte(`{"id":"n1","status":"scheduled"}`))
	}))
	defer server.Close()

	receipt, err := NewClient(server.URL, time.Second).SendNotification(context.Background(), "tok", domain.NotificationRequest{
		Title:         "Maintenance",
		Message:       "Down at nine",
		Audience:      domain.AudienceUser,
		TargetUserIDs: []string{"u1", "u2"},
		ScheduledAt:   &at,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if receipt.ID != "n1" || receipt.Status != domain.NotificationScheduled {
		t.Errorf("Unexpected receipt %+v", receipt)
	}
}

func TestSendNotification_StatusDefaultsToSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	receipt, err := NewClient(server.URL, time.Second).SendNotification(context.Background(), "tok",
		domain.NotificationRequest{Title: "t", Message: "m", Audience: domain.AudienceAll})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if receipt.Status != domain.NotificationSent {
		t.Errorf("Expected status sent, got %q", receipt.Status)
	}
}

func TestNotificationRecipients(t *testing.T) {
	tests := []struct {
		name      string
		audience  string
		userIDs   []string
		wantIDs   string
		wantCount int
	}{
		{"students", domain.AudienceStudents, []string{"ignored"}, "", 12},
		{"selected users", domain.AudienceUser, []string{"u1", "u2"}, "u1,u2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("audience") != tt.audience || q.Get("targetUserIds") != tt.wantIDs {
					t.Errorf("Unexpected query %s", r.URL.RawQuery)
				}
				json.NewEncoder(w).Encode(map[string]int{"count": tt.wantCount})
			}))
			defer server.Close()

			count, err := NewClient(server.URL, time.Second).NotificationRecipients(context.Background(), "tok", tt.audience, tt.userIDs)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if count != tt.wantCount {
				t.Errorf("Expected %d recipients, got %d", tt.wantCount, count)
			}
		})
	}
}

func TestPublicAPKHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/maintenance/public-apk-history" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Expected no Authorization header on a public endpoint")
		}
		w.Write([]byte(`{"success":true,"data":[{"version":"1.4.0","filePath":"/uploads/app.apk","bugFixes":["crash on start"]}]}`))
	}))
	defer server.Close()

	releases, err := NewClient(server.URL, time.Second).PublicAPKHistory(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(releases) != 1 || releases[0].Version != "1.4.0" || len(releases[0].BugFixes) != 1 {
		t.Errorf("Unexpected releases %+v", releases)
	}
}

func TestPublicAPKHistory_Unsuccessful(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).PublicAPKHistory(context.Background())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Expected ErrInvalidResponse, got %v", err)
	}
}
