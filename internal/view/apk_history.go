package view

import (
	"context"

	"scribe-console/internal/domain"
	"scribe-console/internal/realtime"
	"scribe-console/internal/refresh"
)

type APKHistoryQuery struct{}

// NewAPKHistory lists published app builds. The listing is public, so the
// view keeps working without a session.
func NewAPKHistory(api DataAPI, events refresh.Source) View {
	fetch := func(ctx context.Context, _ APKHistoryQuery) ([]domain.APKRelease, error) {
		return api.PublicAPKHistory(ctx)
	}

	return &coordinated[APKHistoryQuery, []domain.APKRelease]{
		Coordinator: refresh.New(refresh.Config[APKHistoryQuery, []domain.APKRelease]{
			Name:   APKHistory,
			Events: []string{realtime.EventAPKListUpdated},
			Fetch:  fetch,
			Source: events,
		}),
		parse: noParams[APKHistoryQuery],
	}
}
