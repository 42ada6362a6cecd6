package domain

import "time"

// UsagePoint is one bucket of the usage time series.
type UsagePoint struct {
	Period         time.Time      `json:"period"`
	Transcriptions int            `json:"transcriptions"`
	Summaries      int            `json:"summaries"`
	Actions        map[string]int `json:"actions,omitempty"`
}

// TopUser is one row of the per-user activity breakdown.
type TopUser struct {
	Name   string         `json:"name"`
	Email  string         `json:"email,omitempty"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	// Value is Total or the count of the selected metric.
	Value int `json:"value"`
}
