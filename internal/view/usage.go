package view

import (
	"context"
	"errors"
	"net/url"

	"scribe-console/internal/domain"
	"scribe-console/internal/realtime"
	"scribe-console/internal/refresh"
)

const maxDaysBack = 365

var usageFilters = map[string]bool{"daily": true, "weekly": true, "monthly": true}

type UsageQuery struct {
	Filter   string `json:"filter"`
	DaysBack int    `json:"daysBack"`
}

func NewUsage(api DataAPI, tokens TokenSource, events refresh.Source) View {
	fetch := func(ctx context.Context, q UsageQuery) ([]domain.UsagePoint, error) {
		token, err := currentToken(ctx, tokens)
		if err != nil {
			return nil, err
		}
		return api.Usage(ctx, token, q.Filter, q.DaysBack)
	}

	return &coordinated[UsageQuery, []domain.UsagePoint]{
		Coordinator: refresh.New(refresh.Config[UsageQuery, []domain.UsagePoint]{
			Name:   Usage,
			Events: []string{realtime.EventAnalyticsUpdate},
			Query:  UsageQuery{Filter: "daily", DaysBack: 7},
			Fetch:  fetch,
			Source: events,
		}),
		parse: parseUsageQuery,
	}
}

func parseUsageQuery(params url.Values, q *UsageQuery) error {
	if f := params.Get("filter"); f != "" {
		if !usageFilters[f] {
			return errors.New("filter must be daily, weekly or monthly")
		}
		q.Filter = f
	}
	return intParam(params, "daysBack", 1, maxDaysBack, &q.DaysBack)
}
