package view

import (
	"context"
	"net/url"

	"scribe-console/internal/backend"
	"scribe-console/internal/domain"
	"scribe-console/internal/realtime"
	"scribe-console/internal/refresh"
)

const (
	defaultUsersLimit = 10
	maxUsersLimit     = 100
	roleAll           = "all"
)

type UsersQuery struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Search string `json:"search,omitempty"`
	Role   string `json:"role"`
}

func (q UsersQuery) params() backend.UsersParams {
	return backend.UsersParams{
		Offset: (q.Page - 1) * q.Limit,
		Limit:  q.Limit,
		Search: q.Search,
		Role:   q.Role,
	}
}

func NewUsers(api DataAPI, tokens TokenSource, events refresh.Source) View {
	fetch := func(ctx context.Context, q UsersQuery) (domain.UserPage, error) {
		token, err := currentToken(ctx, tokens)
		if err != nil {
			return domain.UserPage{}, err
		}
		return api.ListUsers(ctx, token, q.params())
	}

	return &coordinated[UsersQuery, domain.UserPage]{
		Coordinator: refresh.New(refresh.Config[UsersQuery, domain.UserPage]{
			Name:   Users,
			Events: []string{realtime.EventAnalyticsUpdate, realtime.EventUsersUpdate},
			Query:  UsersQuery{Page: 1, Limit: defaultUsersLimit, Role: roleAll},
			Fetch:  fetch,
			Source: events,
		}),
		parse: parseUsersQuery,
	}
}

// parseUsersQuery returns to the first page when the filter changes and no
// page is given.
func parseUsersQuery(params url.Values, q *UsersQuery) error {
	filter := struct{ search, role string }{q.Search, q.Role}

	if _, ok := params["search"]; ok {
		q.Search = params.Get("search")
	}
	if role := params.Get("role"); role != "" {
		q.Role = role
	}
	if err := intParam(params, "limit", 1, maxUsersLimit, &q.Limit); err != nil {
		return err
	}
	if filter.search != q.Search || filter.role != q.Role {
		q.Page = 1
	}
	return intParam(params, "page", 1, 1<<20, &q.Page)
}
