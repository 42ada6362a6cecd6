package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"scribe-console/internal/domain"
)

// UsersParams selects one page of the users listing.
type UsersParams struct {
	Offset int
	Limit  int
	Search string
	Role   string
}

type usersResponse struct {
	Users  []domain.User `json:"users"`
	Total  *int          `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// ListUsers returns one page of users.
func (c *Client) ListUsers(ctx context.Context, token string, p UsersParams) (domain.UserPage, error) {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.Role != "" && p.Role != "all" {
		q.Set("role", p.Role)
	}

	var resp usersResponse
	if err := c.do(ctx, "users", http.MethodGet, "/api/users", token, q, nil, &resp); err != nil {
		return domain.UserPage{}, err
	}

	page := domain.UserPage{
		Users:  resp.Users,
		Offset: p.Offset,
		Limit:  p.Limit,
		Total:  len(resp.Users),
	}
	if page.Users == nil {
		page.Users = []domain.User{}
	}
	if resp.Total != nil {
		page.Total = *resp.Total
	}
	return page, nil
}

type usageResponse struct {
	Data []struct {
		Period         time.Time `json:"period"`
		Transcriptions int       `json:"transcriptions"`
		Summaries      int       `json:"summaries"`
		Actions        []struct {
			Action string `json:"action"`
			Count  int    `json:"count"`
		} `json:"actions"`
	} `json:"data"`
}

// Usage returns the usage time series bucketed by filter (daily, weekly,
// monthly) over the last daysBack days.
func (c *Client) Usage(ctx context.Context, token, filter string, daysBack int) ([]domain.UsagePoint, error) {
	q := url.Values{}
	q.Set("filter", filter)
	q.Set("daysBack", strconv.Itoa(daysBack))

	var resp usageResponse
	if err := c.do(ctx, "usage", http.MethodGet, "/api/activity/usage", token, q, nil, &resp); err != nil {
		return nil, err
	}

	points := make([]domain.UsagePoint, 0, len(resp.Data))
	for _, d := range resp.Data {
		p := domain.UsagePoint{
			Period:         d.Period,
			Transcriptions: d.Transcriptions,
			Summaries:      d.Summaries,
		}
		if len(d.Actions) > 0 {
			p.Actions = make(map[string]int, len(d.Actions))
			for _, a := range d.Actions {
				p.Actions[a.Action] += a.Count
			}
		}
		points = append(points, p)
	}
	return points, nil
}

type topUsersResponse struct {
	TopUsers []struct {
		UserName  string         `json:"userName"`
		UserEmail string         `json:"userEmail"`
		Counts    map[string]int `json:"counts"`
		Total     int            `json:"total"`
	} `json:"topUsers"`
}

// TopUsers returns the per-user activity breakdown.
func (c *Client) TopUsers(ctx context.Context, token string, daysBack, limit int) ([]domain.TopUser, error) {
	q := url.Values{}
	q.Set("daysBack", strconv.Itoa(daysBack))
	q.Set("limit", strconv.Itoa(limit))

	var resp topUsersResponse
	if err := c.do(ctx, "top_users", http.MethodGet, "/api/activity/top-users-breakdown", token, q, nil, &resp); err != nil {
		return nil, err
	}

	users := make([]domain.TopUser, 0, len(resp.TopUsers))
	for _, u := range resp.TopUsers {
		name := u.UserName
		if name == "" {
			name = u.UserEmail
		}
		counts := u.Counts
		if counts == nil {
			counts = map[string]int{}
		}
		users = append(users, domain.TopUser{
			Name:   name,
			Email:  u.UserEmail,
			Counts: counts,
			Total:  u.Total,
		})
	}
	return users, nil
}

type notificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}

// Notifications lists notifications sent by operators.
func (c *Client) Notifications(ctx context.Context, token string) ([]domain.Notification, error) {
	var resp notificationsResponse
	if err := c.do(ctx, "notifications", http.MethodGet, "/api/notifications", token, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Notifications == nil {
		return []domain.Notification{}, nil
	}
	return resp.Notifications, nil
}
