package realtime

import (
	"context"
	"log/slog"
	"sync"

	"scribe-console/internal/observability"
)

// Manager owns the one shared Channel of a console process. It is built once
// at startup and handed to everything that needs live updates.
type Manager struct {
	dialer Dialer
	policy Policy

	mu      sync.Mutex
	channel *Channel
}

// NewManager creates a manager that builds its channel from dialer and
// reconnects according to policy.
func NewManager(dialer Dialer, policy Policy) *Manager {
	return &Manager{dialer: dialer, policy: policy}
}

// GetOrCreate returns the shared channel, building it on first use. A channel
// that gave up is restarted with its registrations intact.
func (m *Manager) GetOrCreate(ctx context.Context) *Channel {
	m.mu.Lock()
	ch := m.channel
	if ch == nil {
		ch = newChannel(m.dialer, m.policy)
		m.channel = ch
		observability.FromContext(ctx).Debug("realtime channel created")
	} else if ch.State() == StateDisconnected {
		observability.FromContext(ctx).Info("restarting realtime channel")
	}
	m.mu.Unlock()

	ch.start()
	return ch
}

// Subscribe registers handler for name on the shared channel.
func (m *Manager) Subscribe(ctx context.Context, name string, handler Handler) func() {
	return m.GetOrCreate(ctx).Subscribe(name, handler)
}

// Current returns the shared channel without creating it.
func (m *Manager) Current() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// State returns the shared channel's state, Uninitialized if none exists.
func (m *Manager) State() State {
	if ch := m.Current(); ch != nil {
		return ch.State()
	}
	return StateUninitialized
}

// DisconnectAll closes the shared channel and forgets it. The next
// GetOrCreate builds fresh state.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	ch := m.channel
	m.channel = nil
	m.mu.Unlock()

	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		slog.Warn("error closing realtime channel", slog.String("error", err.Error()))
	}
	observability.ChannelState.Set(float64(StateUninitialized))
}
