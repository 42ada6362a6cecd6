package view

import (
	"context"

	"scribe-console/internal/domain"
	"scribe-console/internal/realtime"
	"scribe-console/internal/refresh"
)

type NotificationsQuery struct{}

func NewNotifications(api DataAPI, tokens TokenSource, events refresh.Source) View {
	fetch := func(ctx context.Context, _ NotificationsQuery) ([]domain.Notification, error) {
		token, err := currentToken(ctx, tokens)
		if err != nil {
			return nil, err
		}
		return api.Notifications(ctx, token)
	}

	return &coordinated[NotificationsQuery, []domain.Notification]{
		Coordinator: refresh.New(refresh.Config[NotificationsQuery, []domain.Notification]{
			Name:   Notifications,
			Events: []string{realtime.EventNewNotification},
			Fetch:  fetch,
			Source: events,
		}),
		parse: noParams[NotificationsQuery],
	}
}
