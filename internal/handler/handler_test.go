package handler

import (
	"context"
	"net/url"
	"sync/atomic"

	"scribe-console/internal/domain"
	"scribe-console/internal/realtime"
	"scribe-console/internal/service"
	"scribe-console/internal/testutil"
	"scribe-console/internal/view"
)

type fixedState realtime.State

func (s fixedState) State() realtime.State { return realtime.State(s) }

func newTokenManager(session *domain.Session) (*service.TokenManager, *testutil.MockCredentialStore, *testutil.MockAuthAPI) {
	store := testutil.NewMockCredentialStore(session)
	api := &testutil.MockAuthAPI{}
	return service.NewTokenManager(store, api), store, api
}

// fakeView is a view whose snapshot error is set by the test.
type fakeView struct {
	name      string
	mounted   atomic.Bool
	mounts    atomic.Int32
	refreshes atomic.Int32
	loud      atomic.Int32
	unmounts  atomic.Int32
	applied   url.Values
	applyErr  error
	err       error
}

func (v *fakeView) Name() string  { return v.name }
func (v *fakeView) Mounted() bool { return v.mounted.Load() }

func (v *fakeView) Mount(ctx context.Context) error {
	v.mounts.Add(1)
	v.mounted.Store(true)
	return v.err
}

func (v *fakeView) Unmount() {
	v.unmounts.Add(1)
	v.mounted.Store(false)
}

func (v *fakeView) Refresh(ctx context.Context, silent bool) error {
	v.refreshes.Add(1)
	if !silent {
		v.loud.Add(1)
	}
	return v.err
}

func (v *fakeView) Apply(ctx context.Context, params url.Values) error {
	if v.applyErr != nil {
		return v.applyErr
	}
	v.applied = params
	return nil
}

func (v *fakeView) Snapshot() view.Snapshot {
	s := view.Snapshot{View: v.name, Data: []int{1, 2}, Err: v.err}
	if v.err != nil {
		s.Error = v.err.Error()
	}
	return s
}
