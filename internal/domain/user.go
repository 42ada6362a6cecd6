package domain

import "time"

// User is a console-managed account as listed by the backend.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Transcriptions int       `json:"transcriptions"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// UserPage is one page of the users listing.
type UserPage struct {
	Users  []User `json:"users"`
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// DashboardStats are the headline totals shown on the dashboard.
type DashboardStats struct {
	TotalUsers          int `json:"totalUsers"`
	TotalTranscriptions int `json:"totalTranscriptions"`
	TotalSummaries      int `json:"totalSummaries"`
	TotalExports        int `json:"totalExports"`
}
