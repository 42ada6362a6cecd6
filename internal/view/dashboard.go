package view

import (
	"context"
	"strings"

	"scribe-console/internal/backend"
	"scribe-console/internal/domain"
	"scribe-console/internal/realtime"
	"scribe-console/internal/refresh"

	"golang.org/x/sync/errgroup"
)

// DashboardQuery has no inputs; the dashboard always shows all-time totals.
type DashboardQuery struct{}

const (
	dashboardUsageFilter = "monthly"
	dashboardUsageDays   = 365
)

// NewDashboard reads the user listing and the yearly usage series in
// parallel and folds them into headline totals.
func NewDashboard(api DataAPI, tokens TokenSource, events refresh.Source) View {
	fetch := func(ctx context.Context, _ DashboardQuery) (domain.DashboardStats, error) {
		token, err := currentToken(ctx, tokens)
		if err != nil {
			return domain.DashboardStats{}, err
		}

		var (
			page   domain.UserPage
			points []domain.UsagePoint
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			page, err = api.ListUsers(gctx, token, backend.UsersParams{})
			return err
		})
		g.Go(func() error {
			var err error
			points, err = api.Usage(gctx, token, dashboardUsageFilter, dashboardUsageDays)
			return err
		})
		if err := g.Wait(); err != nil {
			return domain.DashboardStats{}, err
		}

		return dashboardStats(page, points), nil
	}

	return &coordinated[DashboardQuery, domain.DashboardStats]{
		Coordinator: refresh.New(refresh.Config[DashboardQuery, domain.DashboardStats]{
			Name:   Dashboard,
			Events: []string{realtime.EventAnalyticsUpdate},
			Fetch:  fetch,
			Source: events,
		}),
		parse: noParams[DashboardQuery],
	}
}

func dashboardStats(page domain.UserPage, points []domain.UsagePoint) domain.DashboardStats {
	stats := domain.DashboardStats{TotalUsers: page.Total}
	for _, u := range page.Users {
		stats.TotalTranscriptions += u.Transcriptions
	}
	for _, p := range points {
		stats.TotalSummaries += p.Summaries
		for action, n := range p.Actions {
			if strings.Contains(strings.ToLower(action), "export") {
				stats.TotalExports += n
			}
		}
	}
	return stats
}
