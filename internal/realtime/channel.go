package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scribe-console/internal/observability"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds connection attempts. The initial connection and every
// reconnection get the same budget.
type Policy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxAttempts         int
}

// DefaultPolicy waits about 1s, 2s, 4s, 5s, 5s between attempts and gives up
// after 5 attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     time.Second,
		MaxInterval:         5 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		MaxAttempts:         5,
	}
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

type stateListener struct {
	id uint64
	fn func(State)
}

// Channel is the shared connection to the backend's event source. Handlers
// registered on it survive reconnections; only Close discards them.
type Channel struct {
	dialer Dialer
	policy Policy
	reg    *registry

	mu           sync.Mutex
	state        State
	conn         Conn
	rooms        []string
	listeners    []stateListener
	nextListener uint64
	cancel       context.CancelFunc
	loopDone     chan struct{}
	done         chan struct{}
	closed       bool

	// inCallback is set while the loop goroutine runs handlers or state
	// listeners. Close must not wait for the loop from there.
	inCallback atomic.Bool
}

func newChannel(dialer Dialer, policy Policy) *Channel {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Channel{
		dialer: dialer,
		policy: policy,
		reg:    newRegistry(),
		done:   make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the channel gives up reconnecting or is closed.
// A restart from Disconnected hands out a new channel from Done.
func (c *Channel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// OnStateChange registers fn for every state transition. The returned func
// removes it.
func (c *Channel) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, stateListener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribe registers handler for name. The returned func removes exactly
// this registration and is safe to call more than once.
func (c *Channel) Subscribe(name string, handler Handler) func() {
	id := c.reg.add(name, handler)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.reg.remove(name, id)
		})
	}
}

// Emit sends an event to the server.
func (c *Channel) Emit(ctx context.Context, name string, payload any) error {
	ev, err := NewEvent(name, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if closed {
		return ErrChannelClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, ev)
}

// JoinRoom joins a server-side room. Joined rooms are sent again after every
// reconnection; when not connected the join is sent on the next connect.
func (c *Channel) JoinRoom(ctx context.Context, room string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	known := false
	for _, r := range c.rooms {
		if r == room {
			known = true
			break
		}
	}
	if !known {
		c.rooms = append(c.rooms, room)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	ev, err := NewEvent(EventJoinRoom, room)
	if err != nil {
		return err
	}
	return conn.Send(ctx, ev)
}

// start launches the connection loop unless one is already running.
func (c *Channel) start() {
	c.mu.Lock()
	if c.closed || c.state.Active() {
		c.mu.Unlock()
		return
	}
	if c.state == StateDisconnected {
		c.done = make(chan struct{})
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	loopDone := make(chan struct{})
	c.loopDone = loopDone
	listeners := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	notify(listeners, StateConnecting)
	go c.run(ctx, loopDone)
}

// Close tears the channel down for good and discards every registration.
// It waits for the connection loop to exit, except when called from a handler
// or state listener, which runs on that loop.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, conn, loopDone := c.cancel, c.conn, c.loopDone
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if loopDone != nil && !c.inCallback.Load() {
		<-loopDone
	}
	c.reg.clear()

	c.mu.Lock()
	c.rooms = nil
	listeners := c.setStateLocked(StateDisconnected)
	c.closeDoneLocked()
	c.mu.Unlock()

	notify(listeners, StateDisconnected)
	return err
}

func (c *Channel) run(ctx context.Context, loopDone chan struct{}) {
	defer close(loopDone)

	log := slog.Default().With(slog.String("component", "realtime"))
	reconnecting := false

	for {
		conn, err := c.connect(ctx, reconnecting, log)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("realtime channel gave up, live updates stopped",
				slog.Int("attempts", c.policy.MaxAttempts))
			c.giveUp()
			return
		}

		if !c.attach(conn) {
			conn.Close()
			return
		}
		log.Info("realtime channel connected", slog.Bool("reconnected", reconnecting))
		c.rejoinRooms(ctx, conn, log)

		err = c.readLoop(ctx, conn)
		c.detach(conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn("realtime transport lost", slog.String("error", err.Error()))

		reconnecting = true
		c.setState(StateReconnecting)
	}
}

func (c *Channel) connect(ctx context.Context, reconnecting bool, log *slog.Logger) (Conn, error) {
	b := c.policy.newBackOff()

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if reconnecting || attempt > 1 {
			if err := sleep(ctx, b.NextBackOff()); err != nil {
				return nil, err
			}
		}

		conn, err := c.dialer.Dial(ctx)
		if err == nil {
			observability.ChannelReconnectAttemptsTotal.WithLabelValues("success").Inc()
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		observability.ChannelReconnectAttemptsTotal.WithLabelValues("failure").Inc()
		log.Debug("realtime connection attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return nil, ErrGaveUp
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) error {
	for {
		ev, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		c.dispatch(ev)
	}
}

// dispatch calls every handler registered for the event, in registration
// order, on the read goroutine.
func (c *Channel) dispatch(ev Event) {
	observability.ChannelEventsReceived.WithLabelValues(ev.Name).Inc()
	c.inCallback.Store(true)
	defer c.inCallback.Store(false)
	for _, h := range c.reg.snapshot(ev.Name) {
		invoke(h, ev)
	}
}

func invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("realtime handler panicked",
				slog.String("event", ev.Name),
				slog.Any("panic", r))
		}
	}()
	h(ev)
}

func (c *Channel) attach(conn Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	listeners := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.notifyFromLoop(listeners, StateConnected)
	return true
}

func (c *Channel) detach(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Channel) rejoinRooms(ctx context.Context, conn Conn, log *slog.Logger) {
	c.mu.Lock()
	rooms := append([]string(nil), c.rooms...)
	c.mu.Unlock()

	for _, room := range rooms {
		ev, err := NewEvent(EventJoinRoom, room)
		if err != nil {
			continue
		}
		if err := conn.Send(ctx, ev); err != nil {
			log.Warn("failed to rejoin room", slog.String("room", room), slog.String("error", err.Error()))
		}
	}
}

func (c *Channel) giveUp() {
	c.mu.Lock()
	c.conn = nil
	listeners := c.setStateLocked(StateDisconnected)
	c.closeDoneLocked()
	c.mu.Unlock()

	c.notifyFromLoop(listeners, StateDisconnected)
}

// setState is called by the loop goroutine only.
func (c *Channel) setState(s State) {
	c.mu.Lock()
	listeners := c.setStateLocked(s)
	c.mu.Unlock()

	c.notifyFromLoop(listeners, s)
}

func (c *Channel) notifyFromLoop(listeners []func(State), s State) {
	c.inCallback.Store(true)
	defer c.inCallback.Store(false)
	notify(listeners, s)
}

// setStateLocked records s and returns the listeners to notify once the lock
// is released.
func (c *Channel) setStateLocked(s State) []func(State) {
	if c.state == s {
		return nil
	}
	c.state = s
	observability.ChannelState.Set(float64(s))

	fns := make([]func(State), len(c.listeners))
	for i, l := range c.listeners {
		fns[i] = l.fn
	}
	return fns
}

func (c *Channel) closeDoneLocked() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func notify(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
