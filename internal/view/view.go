// Package view holds the console's data views. Each view is a refresh
// Coordinator over one backend read, with a query that the local API maps
// from URL parameters.
package view

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"scribe-console/internal/backend"
	"scribe-console/internal/domain"
	"scribe-console/internal/refresh"
)

const (
	Dashboard     = "dashboard"
	Users         = "users"
	Usage         = "usage"
	TopUsers      = "top-users"
	Notifications = "notifications"
	APKHistory    = "apk-history"
)

// TokenSource hands out the current access token. *service.TokenManager
// satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// DataAPI is the read side of the backend. *backend.Client satisfies it.
type DataAPI interface {
	ListUsers(ctx context.Context, token string, p backend.UsersParams) (domain.UserPage, error)
	Usage(ctx context.Context, token, filter string, daysBack int) ([]domain.UsagePoint, error)
	TopUsers(ctx context.Context, token string, daysBack, limit int) ([]domain.TopUser, error)
	Notifications(ctx context.Context, token string) ([]domain.Notification, error)
	PublicAPKHistory(ctx context.Context) ([]domain.APKRelease, error)
}

// Snapshot is the JSON form of a view's state.
type Snapshot struct {
	View      string     `json:"view"`
	Query     any        `json:"query"`
	Data      any        `json:"data"`
	Error     string     `json:"error,omitempty"`
	Loading   bool       `json:"loading"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Err       error      `json:"-"`
}

type View interface {
	Name() string
	Mounted() bool
	Mount(ctx context.Context) error
	Unmount()
	Refresh(ctx context.Context, silent bool) error
	// Apply maps URL parameters onto the query in one update. Malformed
	// parameters fail with domain.ErrInvalidInput and change nothing.
	Apply(ctx context.Context, params url.Values) error
	Snapshot() Snapshot
}

type coordinated[Q comparable, T any] struct {
	*refresh.Coordinator[Q, T]
	parse func(url.Values, *Q) error
}

func (v *coordinated[Q, T]) Apply(ctx context.Context, params url.Values) error {
	if len(params) == 0 {
		return nil
	}

	var parseErr error
	err := v.Update(ctx, func(q *Q) {
		next := *q
		if parseErr = v.parse(params, &next); parseErr == nil {
			*q = next
		}
	})
	if parseErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, parseErr)
	}
	return err
}

func (v *coordinated[Q, T]) Snapshot() Snapshot {
	return snapshotOf(v.Name(), v.Coordinator.Snapshot())
}

func snapshotOf[Q comparable, T any](name string, st refresh.State[Q, T]) Snapshot {
	s := Snapshot{
		View:    name,
		Query:   st.Query,
		Data:    st.Data,
		Loading: st.Loading,
		Err:     st.Err,
	}
	if st.Err != nil {
		s.Error = st.Err.Error()
	}
	if !st.UpdatedAt.IsZero() {
		at := st.UpdatedAt
		s.UpdatedAt = &at
	}
	return s
}

func currentToken(ctx context.Context, tokens TokenSource) (string, error) {
	token, ok := tokens.Token(ctx)
	if !ok {
		return "", domain.ErrNoToken
	}
	return token, nil
}

// intParam reads key into dst when present, bounded to [min, max].
func intParam(params url.Values, key string, min, max int, dst *int) error {
	raw := params.Get(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be an integer", key)
	}
	if n < min || n > max {
		return fmt.Errorf("%s must be between %d and %d", key, min, max)
	}
	*dst = n
	return nil
}

func noParams[Q any](url.Values, *Q) error { return nil }

// Set is the console's collection of views, addressed by name.
type Set struct {
	views map[string]View
	order []string
}

func NewSet(views ...View) *Set {
	s := &Set{views: make(map[string]View, len(views))}
	for _, v := range views {
		s.views[v.Name()] = v
		s.order = append(s.order, v.Name())
	}
	return s
}

// NewDefaultSet builds every console view over the same backend, token source
// and event source.
func NewDefaultSet(api DataAPI, tokens TokenSource, events refresh.Source) *Set {
	return NewSet(
		NewDashboard(api, tokens, events),
		NewUsers(api, tokens, events),
		NewUsage(api, tokens, events),
		NewTopUsers(api, tokens, events),
		NewNotifications(api, tokens, events),
		NewAPKHistory(api, events),
	)
}

func (s *Set) Get(name string) (View, bool) {
	v, ok := s.views[name]
	return v, ok
}

func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// UnmountAll unmounts every mounted view.
func (s *Set) UnmountAll() {
	for _, name := range s.order {
		if v := s.views[name]; v.Mounted() {
			v.Unmount()
		}
	}
}
