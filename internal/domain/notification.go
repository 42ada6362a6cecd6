package domain

import (
	"fmt"
	"strings"
	"time"
)

// Notification audiences accepted by the backend.
const (
	AudienceAll      = "all"
	AudienceStudents = "students"
	AudienceTeachers = "teachers"
	AudienceUser     = "user"
)

const (
	NotificationSent      = "sent"
	NotificationScheduled = "scheduled"
)

// Notification is an operator-facing notification as listed by the backend.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type,omitempty"`
	Audience  string    `json:"audience,omitempty"`
	SentBy    string    `json:"sentBy,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationRequest is a notification to send now or at ScheduledAt.
// TargetUserIDs is only used with AudienceUser.
type NotificationRequest struct {
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Type          string     `json:"type"`
	Audience      string     `json:"audience"`
	TargetUserIDs []string   `json:"targetUserIds,omitempty"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
}

// NotificationReceipt is the backend's answer to a send.
type NotificationReceipt struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

// Normalize fills defaults and checks the request against now. Errors wrap
// ErrInvalidInput.
func (r *NotificationRequest) Normalize(now time.Time) error {
	if r.Type == "" {
		r.Type = "info"
	}
	if r.Audience == "" {
		r.Audience = AudienceAll
	}

	var problems []string
	if r.Title == "" {
		problems = append(problems, "title is required")
	}
	if r.Message == "" {
		problems = append(problems, "message is required")
	}
	switch r.Audience {
	case AudienceAll, AudienceStudents, AudienceTeachers:
		r.TargetUserIDs = nil
	case AudienceUser:
		if len(r.TargetUserIDs) == 0 {
			problems = append(problems, "select at least one user")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown audience %q", r.Audience))
	}
	if r.ScheduledAt != nil && !r.ScheduledAt.After(now) {
		problems = append(problems, "scheduledAt must be in the future")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// APKRelease is one published build of the mobile app.
type APKRelease struct {
	Version      string    `json:"version"`
	FilePath     string    `json:"filePath"`
	Features     []string  `json:"features,omitempty"`
	Improvements []string  `json:"improvements,omitempty"`
	BugFixes     []string  `json:"bugFixes,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}
