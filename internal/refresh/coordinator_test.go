package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scribe-console/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu         sync.Mutex
	next       int
	handlers   map[string]map[int]realtime.Handler
	subscribes int
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[string]map[int]realtime.Handler)}
}

func (s *fakeSource) Subscribe(_ context.Context, name string, h realtime.Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	id := s.next
	if s.handlers[name] == nil {
		s.handlers[name] = make(map[int]realtime.Handler)
	}
	s.handlers[name][id] = h
	s.subscribes++

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[name], id)
	}
}

func (s *fakeSource) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers[name])
}

func (s *fakeSource) emit(name string) {
	s.mu.Lock()
	hs := make([]realtime.Handler, 0, len(s.handlers[name]))
	for _, h := range s.handlers[name] {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(realtime.Event{Name: name})
	}
}

type pageQuery struct {
	Page   int
	Search string
}

func TestMount_Idempotent(t *testing.T) {
	src := newFakeSource()
	c := New(Config[pageQuery, int]{
		Name:   "users",
		Events: []string{realtime.EventAnalyticsUpdate, realtime.EventUsersUpdate},
		Query:  pageQuery{Page: 1},
		Fetch:  func(ctx context.Context, q pageQuery) (int, error) { return q.Page, nil },
		Source: src,
	})

	ctx := context.Background()
	require.NoError(t, c.Mount(ctx))
	require.NoError(t, c.Mount(ctx))

	assert.Equal(t, 1, src.count(realtime.EventAnalyticsUpdate))
	assert.Equal(t, 1, src.count(realtime.EventUsersUpdate))
	assert.True(t, c.isRegistered())
	assert.Equal(t, 1, c.Snapshot().Data)
}

func TestSilentRefresh_PreservesPageWithoutLoading(t *testing.T) {
	src := newFakeSource()

	var (
		mu      sync.Mutex
		pages   []int
		loading []bool
		c       *Coordinator[pageQuery, int]
	)
	fetch := func(ctx context.Context, q pageQuery) (int, error) {
		mu.Lock()
		pages = append(pages, q.Page)
		loading = append(loading, c.Snapshot().Loading)
		mu.Unlock()
		return q.Page * 10, nil
	}

	c = New(Config[pageQuery, int]{
		Name:   "users",
		Events: []string{realtime.EventAnalyticsUpdate},
		Query:  pageQuery{Page: 1},
		Fetch:  fetch,
		Source: src,
	})

	ctx := context.Background()
	require.NoError(t, c.Mount(ctx))
	require.NoError(t, c.Update(ctx, func(q *pageQuery) { q.Page = 3 }))

	src.emit(realtime.EventAnalyticsUpdate)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 3, 3}, pages)
	// loud, loud, silent
	assert.Equal(t, []bool{true, true, false}, loading)

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.Query.Page)
	assert.Equal(t, 30, snap.Data)
	assert.False(t, snap.Loading)
}

func TestUpdate_AppliesChangesInOneStep(t *testing.T) {
	src := newFakeSource()
	var fetches atomic.Int32
	var last atomic.Value

	c := New(Config[pageQuery, int]{
		Name:   "users",
		Events: []string{realtime.EventUsersUpdate},
		Query:  pageQuery{Page: 1},
		Fetch: func(ctx context.Context, q pageQuery) (int, error) {
			fetches.Add(1)
			last.Store(q)
			return 0, nil
		},
		Source: src,
	})

	ctx := context.Background()
	require.NoError(t, c.Mount(ctx))
	require.Equal(t, 1, src.subscribes)

	require.NoError(t, c.Update(ctx, func(q *pageQuery) {
		q.Page = 2
		q.Search = "ada"
	}))

	assert.Equal(t, int32(2), fetches.Load())
	assert.Equal(t, pageQuery{Page: 2, Search: "ada"}, last.Load())
	assert.Equal(t, 2, src.subscribes, "query change re-registers")
	assert.Equal(t, 1, src.count(realtime.EventUsersUpdate))

	require.NoError(t, c.Update(ctx, func(q *pageQuery) { q.Page = 2 }))
	assert.Equal(t, int32(2), fetches.Load(), "unchanged query does not refetch")
	assert.Equal(t, 2, src.subscribes)
}

func TestUpdate_BeforeMountOnlyStoresQuery(t *testing.T) {
	var fetches atomic.Int32
	c := New(Config[pageQuery, int]{
		Name:  "users",
		Query: pageQuery{Page: 1},
		Fetch: func(ctx context.Context, q pageQuery) (int, error) {
			fetches.Add(1)
			return q.Page, nil
		},
	})

	require.NoError(t, c.Update(context.Background(), func(q *pageQuery) { q.Page = 4 }))
	assert.Equal(t, int32(0), fetches.Load())

	require.NoError(t, c.Mount(context.Background()))
	assert.Equal(t, 4, c.Snapshot().Data)
}

// blockingFetch returns "initial" for the first call, blocks the second call
// until release is closed and returns "old", and returns "new" afterwards.
func blockingFetch(calls *atomic.Int32, release <-chan struct{}) Fetcher[pageQuery, string] {
	return func(ctx context.Context, q pageQuery) (string, error) {
		switch calls.Add(1) {
		case 1:
			return "initial", nil
		case 2:
			<-release
			return "old", nil
		default:
			return "new", nil
		}
	}
}

func TestRefresh_DiscardsStaleResponse(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	c := New(Config[pageQuery, string]{
		Name:  "notifications",
		Fetch: blockingFetch(&calls, release),
	})
	ctx := context.Background()
	require.NoError(t, c.Mount(ctx))

	done := make(chan error, 1)
	go func() { done <- c.Refresh(ctx, false) }()

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	assert.True(t, c.Snapshot().Loading)

	require.NoError(t, c.Refresh(ctx, true))
	assert.Equal(t, "new", c.Snapshot().Data)

	close(release)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, "new", snap.Data)
	assert.False(t, snap.Loading)
}

func TestUnmount_DiscardsLateResponse(t *testing.T) {
	src := newFakeSource()
	var calls atomic.Int32
	release := make(chan struct{})

	c := New(Config[pageQuery, string]{
		Name:   "notifications",
		Events: []string{realtime.EventNewNotification},
		Fetch:  blockingFetch(&calls, release),
		Source: src,
	})
	ctx := context.Background()
	require.NoError(t, c.Mount(ctx))

	done := make(chan error, 1)
	go func() { done <- c.Refresh(ctx, false) }()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	c.Unmount()
	assert.Equal(t, 0, src.count(realtime.EventNewNotification))
	assert.False(t, c.isRegistered())
	assert.False(t, c.Mounted())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "initial", c.Snapshot().Data)

	assert.ErrorIs(t, c.Refresh(ctx, true), ErrNotMounted)
}

func TestUnmount_StopsLiveRefreshes(t *testing.T) {
	src := newFakeSource()
	var fetches atomic.Int32

	c := New(Config[pageQuery, int]{
		Name:   "dashboard",
		Events: []string{realtime.EventAnalyticsUpdate},
		Fetch: func(ctx context.Context, q pageQuery) (int, error) {
			return int(fetches.Add(1)), nil
		},
		Source: src,
	})
	require.NoError(t, c.Mount(context.Background()))

	src.emit(realtime.EventAnalyticsUpdate)
	c.Wait()
	assert.Equal(t, int32(2), fetches.Load())

	c.Unmount()
	src.emit(realtime.EventAnalyticsUpdate)
	c.Wait()
	assert.Equal(t, int32(2), fetches.Load())

	// remount registers again
	require.NoError(t, c.Mount(context.Background()))
	assert.Equal(t, 1, src.count(realtime.EventAnalyticsUpdate))
}

func TestRefresh_ErrorKeepsData(t *testing.T) {
	errBackend := errors.New("backend down")
	var fail atomic.Bool

	c := New(Config[pageQuery, string]{
		Name: "usage",
		Fetch: func(ctx context.Context, q pageQuery) (string, error) {
			if fail.Load() {
				return "", errBackend
			}
			return "points", nil
		},
	})
	ctx := context.Background()
	require.NoError(t, c.Mount(ctx))

	fail.Store(true)
	assert.ErrorIs(t, c.Refresh(ctx, true), errBackend)

	snap := c.Snapshot()
	assert.Equal(t, "points", snap.Data)
	assert.ErrorIs(t, snap.Err, errBackend)

	fail.Store(false)
	require.NoError(t, c.Refresh(ctx, true))
	assert.NoError(t, c.Snapshot().Err)
}

func TestLiveRefresh_ThroughRealtimeManager(t *testing.T) {
	conns := make(chan *pipeConn, 1)
	dialer := realtime.DialerFunc(func(ctx context.Context) (realtime.Conn, error) {
		c := newPipeConn()
		conns <- c
		return c, nil
	})
	m := realtime.NewManager(dialer, realtime.DefaultPolicy())
	defer m.DisconnectAll()

	var fetches atomic.Int32
	c := New(Config[pageQuery, int]{
		Name:   "dashboard",
		Events: []string{realtime.EventAnalyticsUpdate},
		Fetch: func(ctx context.Context, q pageQuery) (int, error) {
			return int(fetches.Add(1)), nil
		},
		Source: m,
	})
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()

	conn := <-conns
	conn.in <- realtime.Event{Name: realtime.EventAnalyticsUpdate}

	require.Eventually(t, func() bool { return c.Snapshot().Data == 2 }, 2*time.Second, 5*time.Millisecond)
}

type pipeConn struct {
	in     chan realtime.Event
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan realtime.Event, 4), closed: make(chan struct{})}
}

func (p *pipeConn) Receive(ctx context.Context) (realtime.Event, error) {
	select {
	case ev := <-p.in:
		return ev, nil
	case <-p.closed:
		return realtime.Event{}, realtime.ErrChannelClosed
	case <-ctx.Done():
		return realtime.Event{}, ctx.Err()
	}
}

func (p *pipeConn) Send(context.Context, realtime.Event) error { return nil }

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func TestRefresh_CanceledCallerKeepsState(t *testing.T) {
	var cancelNext atomic.Bool

	c := New(Config[pageQuery, string]{
		Name: "users",
		Fetch: func(ctx context.Context, q pageQuery) (string, error) {
			if cancelNext.Load() {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "rows", nil
		},
	})
	require.NoError(t, c.Mount(context.Background()))

	cancelNext.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Refresh(ctx, false) }()
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)

	snap := c.Snapshot()
	assert.Equal(t, "rows", snap.Data)
	assert.NoError(t, snap.Err, "cancellation is not stored as the view's error")
	assert.False(t, snap.Loading)
}
