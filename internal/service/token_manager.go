package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe-console/internal/domain"
	"scribe-console/internal/observability"
)

// DefaultRenewMargin is how long before expiry a token is treated as due for
// renewal.
const DefaultRenewMargin = 5 * time.Minute

// AuthAPI is the slice of the backend the token manager talks to.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (domain.Session, error)
	Renew(ctx context.Context, token string) (domain.Session, error)
	Verify(ctx context.Context, token string) (domain.Verification, error)
	Logout(ctx context.Context, token string) error
	Profile(ctx context.Context, token string) (*domain.Admin, error)
}

// VerifyResult is the outcome of a session check.
type VerifyResult struct {
	Valid bool
	Admin *domain.Admin
	// Reason is set when Valid is false.
	Reason string
}

// TokenManager owns the access credential: it reads and writes the credential
// store, renews the token ahead of expiry and verifies it with the backend.
type TokenManager struct {
	store  domain.CredentialStore
	api    AuthAPI
	margin time.Duration
	now    func() time.Time

	// mu serializes operations that talk to the backend and rewrite the store.
	mu sync.Mutex
}

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithRenewMargin overrides DefaultRenewMargin.
func WithRenewMargin(margin time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if margin > 0 {
			m.margin = margin
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager creates a token manager over store, renewing and verifying
// through api.
func NewTokenManager(store domain.CredentialStore, api AuthAPI, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		store:  store,
		api:    api,
		margin: DefaultRenewMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns the current access token. Store failures are logged and
// reported as no token.
func (m *TokenManager) Token(ctx context.Context) (string, bool) {
	s := m.load(ctx)
	return s.Token, s.HasToken()
}

// Session returns the stored session, or an empty one.
func (m *TokenManager) Session(ctx context.Context) domain.Session {
	return m.load(ctx)
}

// SetToken stores token as the current credential.
func (m *TokenManager) SetToken(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return domain.ErrInvalidInput
	}
	return m.store.Save(ctx, domain.Session{Token: token, ExpiresAt: expiresAt})
}

// ClearToken drops the stored credential.
func (m *TokenManager) ClearToken(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// IsExpiringSoon reports whether the stored token is missing, has no recorded
// expiry, or expires within the safety margin.
func (m *TokenManager) IsExpiringSoon(ctx context.Context) bool {
	return m.load(ctx).ExpiresWithin(m.now(), m.margin)
}

// Renew trades the current token for a fresh one. It makes exactly one
// attempt; on failure the credential is cleared.
func (m *TokenManager) Renew(ctx context.Context) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.renewLocked(ctx, m.load(ctx))
}

func (m *TokenManager) renewLocked(ctx context.Context, current domain.Session) (domain.Session, error) {
	log := observability.FromContext(ctx)

	if !current.HasToken() {
		observability.TokenRenewalsTotal.WithLabelValues("no_token").Inc()
		return domain.Session{}, domain.ErrNoToken
	}

	renewed, err := m.api.Renew(ctx, current.Token)
	if err != nil {
		observability.TokenRenewalsTotal.WithLabelValues("rejected").Inc()
		log.Warn("token renewal failed, clearing credential", slog.String("error", err.Error()))
		m.clear(ctx)
		return domain.Session{}, &domain.AuthError{Reason: domain.ReasonRenewRejected, Err: err}
	}

	if err := m.store.Save(ctx, renewed); err != nil {
		observability.TokenRenewalsTotal.WithLabelValues("store_error").Inc()
		m.clear(ctx)
		return domain.Session{}, &domain.AuthError{Reason: domain.ReasonRenewRejected, Err: err}
	}

	observability.TokenRenewalsTotal.WithLabelValues("renewed").Inc()
	log.Debug("token renewed", slog.Time("expires_at", renewed.ExpiresAt))
	return renewed, nil
}

// Verify checks the session with the backend, renewing first when the token
// is expiring soon. Any failure clears the credential and reports invalid.
func (m *TokenManager) Verify(ctx context.Context) VerifyResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := observability.FromContext(ctx)

	current := m.load(ctx)
	if !current.HasToken() {
		observability.TokenVerificationsTotal.WithLabelValues("no_token").Inc()
		return VerifyResult{Reason: domain.ReasonNoToken}
	}

	if current.ExpiresWithin(m.now(), m.margin) {
		renewed, err := m.renewLocked(ctx, current)
		if err != nil {
			observability.TokenVerificationsTotal.WithLabelValues("renew_failed").Inc()
			return VerifyResult{Reason: domain.ReasonRenewRejected}
		}
		current = renewed
	}

	v, err := m.api.Verify(ctx, current.Token)
	if err != nil || !v.Valid {
		observability.TokenVerificationsTotal.WithLabelValues("invalid").Inc()
		if err != nil {
			log.Warn("session verification failed", slog.String("error", err.Error()))
		} else {
			log.Info("backend reported session invalid")
		}
		m.clear(ctx)
		return VerifyResult{Reason: domain.ReasonVerifyRejected}
	}

	if !v.SessionExpiresAt.IsZero() && !v.SessionExpiresAt.Equal(current.ExpiresAt) {
		current.ExpiresAt = v.SessionExpiresAt
		if err := m.store.Save(ctx, current); err != nil {
			log.Error("failed to store session expiry", slog.String("error", err.Error()))
		}
	}

	observability.TokenVerificationsTotal.WithLabelValues("valid").Inc()
	return VerifyResult{Valid: true, Admin: v.Admin}
}

// Login authenticates the operator and stores the new session.
func (m *TokenManager) Login(ctx context.Context, email, password string) (domain.Session, error) {
	if email == "" || password == "" {
		return domain.Session{}, domain.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.api.Login(ctx, email, password)
	if err != nil {
		return domain.Session{}, err
	}
	if err := m.store.Save(ctx, session); err != nil {
		return domain.Session{}, err
	}

	observability.FromContext(ctx).Info("operator logged in", slog.Time("expires_at", session.ExpiresAt))
	return session, nil
}

// Logout tells the backend the session is over and always clears the
// credential.
func (m *TokenManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.load(ctx)
	if current.HasToken() {
		if err := m.api.Logout(ctx, current.Token); err != nil {
			observability.FromContext(ctx).Warn("backend logout failed", slog.String("error", err.Error()))
		}
	}
	return m.store.Clear(ctx)
}

// Profile returns the operator profile for the current token.
func (m *TokenManager) Profile(ctx context.Context) (*domain.Admin, error) {
	token, ok := m.Token(ctx)
	if !ok {
		return nil, domain.ErrNoToken
	}
	return m.api.Profile(ctx, token)
}

func (m *TokenManager) load(ctx context.Context) domain.Session {
	s, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCredentialNotFound) {
			observability.FromContext(ctx).Error("failed to read credential store", slog.String("error", err.Error()))
		}
		return domain.Session{}
	}
	return s
}

func (m *TokenManager) clear(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		observability.FromContext(ctx).Error("failed to clear credential store", slog.String("error", err.Error()))
	}
}
