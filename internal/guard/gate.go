// Package guard decides whether protected content may be shown. A Gate is
// created per mount and verifies the session exactly once.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"scribe-console/internal/domain"
	"scribe-console/internal/observability"
	"scribe-console/internal/service"
)

type Status int

const (
	Pending Status = iota
	Allowed
	Redirected
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Allowed:
		return "allowed"
	case Redirected:
		return "redirected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Verifier checks the current session. *service.TokenManager satisfies it.
type Verifier interface {
	Verify(ctx context.Context) service.VerifyResult
}

type VerifierFunc func(ctx context.Context) service.VerifyResult

func (f VerifierFunc) Verify(ctx context.Context) service.VerifyResult {
	return f(ctx)
}

type Gate struct {
	verifier Verifier

	mu      sync.Mutex
	started bool
	status  Status
	result  service.VerifyResult
	done    chan struct{}
}

func NewGate(verifier Verifier) *Gate {
	return &Gate{verifier: verifier, done: make(chan struct{})}
}

func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Enter runs verification on the first call. Later and concurrent callers
// wait for that result. If ctx ends first the gate reports Pending.
func (g *Gate) Enter(ctx context.Context) (Status, service.VerifyResult) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		select {
		case <-g.done:
			return g.settled()
		case <-ctx.Done():
			return Pending, service.VerifyResult{}
		}
	}
	g.started = true
	g.mu.Unlock()

	result := g.verify(ctx)

	g.mu.Lock()
	g.result = result
	if result.Valid {
		g.status = Allowed
	} else {
		g.status = Redirected
	}
	close(g.done)
	g.mu.Unlock()

	return g.settled()
}

func (g *Gate) settled() (Status, service.VerifyResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, g.result
}

func (g *Gate) verify(ctx context.Context) (result service.VerifyResult) {
	defer func() {
		if r := recover(); r != nil {
			observability.FromContext(ctx).Error("session verification panicked",
				slog.Any("panic", r))
			result = service.VerifyResult{Reason: domain.ReasonVerifyRejected}
		}
	}()
	return g.verifier.Verify(ctx)
}
