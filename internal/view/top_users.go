package view

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"scribe-console/internal/domain"
	"scribe-console/internal/realtime"
	"scribe-console/internal/refresh"
)

const (
	MetricTotal         = "total"
	maxTopUsersLimit    = 100
	defaultTopUsersDays = 1
	defaultTopUsersRows = 10
)

// TopUsersQuery is what the backend is asked for. The metric is chosen
// locally and never causes a fetch.
type TopUsersQuery struct {
	DaysBack int `json:"daysBack"`
	Limit    int `json:"limit"`
}

type topUsersQueryJSON struct {
	TopUsersQuery
	Metric string `json:"metric"`
}

type topUsersView struct {
	*coordinated[TopUsersQuery, []domain.TopUser]

	mu     sync.Mutex
	metric string
}

func NewTopUsers(api DataAPI, tokens TokenSource, events refresh.Source) View {
	fetch := func(ctx context.Context, q TopUsersQuery) ([]domain.TopUser, error) {
		token, err := currentToken(ctx, tokens)
		if err != nil {
			return nil, err
		}
		return api.TopUsers(ctx, token, q.DaysBack, q.Limit)
	}

	return &topUsersView{
		coordinated: &coordinated[TopUsersQuery, []domain.TopUser]{
			Coordinator: refresh.New(refresh.Config[TopUsersQuery, []domain.TopUser]{
				Name:   TopUsers,
				Events: []string{realtime.EventAnalyticsUpdate},
				Query:  TopUsersQuery{DaysBack: defaultTopUsersDays, Limit: defaultTopUsersRows},
				Fetch:  fetch,
				Source: events,
			}),
			parse: parseTopUsersQuery,
		},
		metric: MetricTotal,
	}
}

func (v *topUsersView) Apply(ctx context.Context, params url.Values) error {
	metric := params.Get("metric")
	rest := url.Values{}
	for k, vals := range params {
		if k != "metric" {
			rest[k] = vals
		}
	}

	if err := v.coordinated.Apply(ctx, rest); err != nil {
		return err
	}
	if metric != "" {
		v.mu.Lock()
		v.metric = metric
		v.mu.Unlock()
	}
	return nil
}

func (v *topUsersView) Snapshot() Snapshot {
	st := v.Coordinator.Snapshot()

	v.mu.Lock()
	metric := v.metric
	v.mu.Unlock()

	snap := snapshotOf(v.Name(), st)
	snap.Query = topUsersQueryJSON{TopUsersQuery: st.Query, Metric: metric}
	snap.Data = rankByMetric(st.Data, metric)
	return snap
}

// rankByMetric sets Value to the selected count and orders rows by it,
// highest first. Rows are copied; the cached data is not touched.
func rankByMetric(users []domain.TopUser, metric string) []domain.TopUser {
	ranked := make([]domain.TopUser, len(users))
	for i, u := range users {
		if metric == MetricTotal {
			u.Value = u.Total
		} else {
			u.Value = u.Counts[metric]
		}
		ranked[i] = u
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value > ranked[j].Value
	})
	return ranked
}

func parseTopUsersQuery(params url.Values, q *TopUsersQuery) error {
	if err := intParam(params, "daysBack", 1, maxDaysBack, &q.DaysBack); err != nil {
		return err
	}
	return intParam(params, "limit", 1, maxTopUsersLimit, &q.Limit)
}
