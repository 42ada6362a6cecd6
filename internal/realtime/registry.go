package realtime

import (
	"sync"

	"scribe-console/internal/observability"
)

type registration struct {
	id uint64
	fn Handler
}

// registry maps event names to handlers in registration order. Removal is by
// registration id, so removing one subscriber never touches another
// subscriber of the same event.
type registry struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]registration
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]registration)}
}

func (r *registry) add(name string, fn Handler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.handlers[name] = append(r.handlers[name], registration{id: r.nextID, fn: fn})
	observability.ChannelHandlersRegistered.WithLabelValues(name).Set(float64(len(r.handlers[name])))
	return r.nextID
}

func (r *registry) remove(name string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.handlers[name]
	for i, reg := range regs {
		if reg.id != id {
			continue
		}
		regs = append(regs[:i:i], regs[i+1:]...)
		if len(regs) == 0 {
			delete(r.handlers, name)
		} else {
			r.handlers[name] = regs
		}
		observability.ChannelHandlersRegistered.WithLabelValues(name).Set(float64(len(regs)))
		return true
	}
	return false
}

// snapshot returns the handlers for name at this instant. Dispatch works on
// the copy so a handler may unsubscribe itself.
func (r *registry) snapshot(name string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.handlers[name]
	out := make([]Handler, len(regs))
	for i, reg := range regs {
		out[i] = reg.fn
	}
	return out
}

func (r *registry) count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[name])
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.handlers {
		observability.ChannelHandlersRegistered.WithLabelValues(name).Set(0)
	}
	r.handlers = make(map[string][]registration)
}
