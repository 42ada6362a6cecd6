// Package refresh keeps a view's data current. A Coordinator fetches the
// view's data for its current query and re-fetches it silently whenever the
// shared realtime channel announces a change.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe-console/internal/observability"
	"scribe-console/internal/realtime"
)

var ErrNotMounted = errors.New("view is not mounted")

const (
	modeInitial = "initial"
	modeSilent  = "silent"

	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeDiscarded = "discarded"

	reasonStale     = "stale"
	reasonUnmounted = "unmounted"
	reasonCanceled  = "canceled"
)

// Fetcher loads the data for one query.
type Fetcher[Q comparable, T any] func(ctx context.Context, query Q) (T, error)

// Source is where a coordinator registers for live events.
// *realtime.Manager satisfies it.
type Source interface {
	Subscribe(ctx context.Context, name string, handler realtime.Handler) func()
}

type registration int

const (
	notRegistered registration = iota
	registered
)

// State is a copy of a view's local state.
type State[Q comparable, T any] struct {
	Query     Q
	Data      T
	Err       error
	Loading   bool
	UpdatedAt time.Time
}

// Config describes one view: the events that refresh it, its initial query
// and how to fetch data for a query.
type Config[Q comparable, T any] struct {
	Name   string
	Events []string
	Query  Q
	Fetch  Fetcher[Q, T]
	Source Source
}

// Coordinator keeps one view's data current. It owns the view's query and
// last result, and refreshes on mount, on query updates and on live events.
type Coordinator[Q comparable, T any] struct {
	name   string
	events []string
	fetch  Fetcher[Q, T]
	source Source

	regMu  sync.Mutex
	guard  registration
	unsubs []func()

	mu        sync.Mutex
	query     Q
	data      T
	err       error
	updatedAt time.Time
	loud      int
	issued    uint64
	applied   uint64
	mounted   bool
	gen       uint64
	mountCtx  context.Context
	cancel    context.CancelFunc
	live      sync.WaitGroup
}

// New creates an unmounted coordinator from cfg.
func New[Q comparable, T any](cfg Config[Q, T]) *Coordinator[Q, T] {
	return &Coordinator[Q, T]{
		name:   cfg.Name,
		events: cfg.Events,
		fetch:  cfg.Fetch,
		source: cfg.Source,
		query:  cfg.Query,
	}
}

func (c *Coordinator[Q, T]) Name() string {
	return c.name
}

// Mount registers the view for its live events and performs the initial
// fetch. Mounting an already mounted view registers nothing new.
func (c *Coordinator[Q, T]) Mount(ctx context.Context) error {
	c.mu.Lock()
	if !c.mounted {
		c.mountCtx, c.cancel = context.WithCancel(observability.WithView(context.WithoutCancel(ctx), c.name))
		c.mounted = true
		c.gen++
	}
	mountCtx := c.mountCtx
	c.mu.Unlock()

	c.register(mountCtx)
	return c.Refresh(ctx, false)
}

// Unmount removes the view's registrations and discards any response still
// in flight.
func (c *Coordinator[Q, T]) Unmount() {
	c.deregister()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mounted = false
	c.gen++
	c.mountCtx = nil
	c.cancel = nil
	c.mu.Unlock()
}

func (c *Coordinator[Q, T]) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted
}

// isRegistered reports whether the view currently holds its event handlers.
func (c *Coordinator[Q, T]) isRegistered() bool {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	return c.guard == registered
}

// Refresh fetches data for the current query. A silent refresh leaves Loading
// untouched. A response older than the latest applied one is dropped, and so
// is a failure caused by ctx being canceled.
func (c *Coordinator[Q, T]) Refresh(ctx context.Context, silent bool) error {
	mode := modeInitial
	if silent {
		mode = modeSilent
	}

	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}
	c.issued++
	seq := c.issued
	gen := c.gen
	query := c.query
	if !silent {
		c.loud++
	}
	c.mu.Unlock()

	data, err := c.fetch(ctx, query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !silent {
		c.loud--
	}

	if gen != c.gen || !c.mounted {
		observability.ViewResponsesDiscarded.WithLabelValues(c.name, reasonUnmounted).Inc()
		observability.ViewRefreshesTotal.WithLabelValues(c.name, mode, outcomeDiscarded).Inc()
		return err
	}
	if seq < c.applied {
		observability.ViewResponsesDiscarded.WithLabelValues(c.name, reasonStale).Inc()
		observability.ViewRefreshesTotal.WithLabelValues(c.name, mode, outcomeDiscarded).Inc()
		return err
	}
	// The caller went away; its cancellation says nothing about the data.
	if err != nil && ctx.Err() != nil {
		observability.ViewResponsesDiscarded.WithLabelValues(c.name, reasonCanceled).Inc()
		observability.ViewRefreshesTotal.WithLabelValues(c.name, mode, outcomeDiscarded).Inc()
		return err
	}

	c.applied = seq
	c.updatedAt = time.Now()
	if err != nil {
		c.err = err
		observability.ViewRefreshesTotal.WithLabelValues(c.name, mode, outcomeError).Inc()
		return err
	}

	c.data = data
	c.err = nil
	observability.ViewRefreshesTotal.WithLabelValues(c.name, mode, outcomeOK).Inc()
	return nil
}

// Update applies mutate to the query in one step. When the query changes the
// view re-registers its handlers and refreshes once.
func (c *Coordinator[Q, T]) Update(ctx context.Context, mutate func(*Q)) error {
	c.mu.Lock()
	next := c.query
	mutate(&next)
	changed := next != c.query
	c.query = next
	mounted := c.mounted
	mountCtx := c.mountCtx
	c.mu.Unlock()

	if !changed || !mounted {
		return nil
	}

	c.deregister()
	c.register(mountCtx)
	return c.Refresh(ctx, false)
}

func (c *Coordinator[Q, T]) Snapshot() State[Q, T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State[Q, T]{
		Query:     c.query,
		Data:      c.data,
		Err:       c.err,
		Loading:   c.loud > 0,
		UpdatedAt: c.updatedAt,
	}
}

// Wait blocks until event-triggered refreshes started so far have finished.
func (c *Coordinator[Q, T]) Wait() {
	c.live.Wait()
}

func (c *Coordinator[Q, T]) register(ctx context.Context) {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	if c.guard == registered || c.source == nil {
		return
	}

	for _, name := range c.events {
		c.unsubs = append(c.unsubs, c.source.Subscribe(ctx, name, c.handle))
	}
	c.guard = registered
}

func (c *Coordinator[Q, T]) deregister() {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	for _, unsubscribe := range c.unsubs {
		unsubscribe()
	}
	c.unsubs = nil
	c.guard = notRegistered
}

func (c *Coordinator[Q, T]) handle(ev realtime.Event) {
	c.mu.Lock()
	ctx := c.mountCtx
	if ctx == nil {
		c.mu.Unlock()
		return
	}
	c.live.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.live.Done()
		if err := c.Refresh(ctx, true); err != nil && !errors.Is(err, ErrNotMounted) {
			observability.FromContext(ctx).Warn("live refresh failed",
				slog.String("event", ev.Name),
				slog.String("error", err.Error()))
		}
	}()
}
