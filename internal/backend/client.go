package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scribe-console/internal/domain"
	"scribe-console/internal/observability"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var ErrInvalidResponse = errors.New("invalid response from backend")

// StatusError is a non-2xx answer from the backend. 401 and 403 unwrap to
// domain.ErrUnauthorized, 404 to domain.ErrNotFound.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	}
	return nil
}

// Client handles requests to the console backend API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit paces outgoing requests. Bursts of live events can trigger
// many silent refreshes at once; requests wait for a token instead of failing.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewClient creates a new backend API client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type verifyResponse struct {
	Valid            bool          `json:"valid"`
	Admin            *domain.Admin `json:"admin"`
	SessionExpiresAt *time.Time    `json:"sessionExpiresAt"`
}

type profileResponse struct {
	Admin *domain.Admin `json:"admin"`
}

// Login exchanges operator credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (domain.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, "login", http.MethodPost, "/api/auth/admin/login", "", nil,
		loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return domain.Session{}, err
	}
	return resp.session()
}

// Renew trades the current token for a fresh one.
func (c *Client) Renew(ctx context.Context, token string) (domain.Session, error) {
	var resp tokenResponse
	if err := c.do(ctx, "refresh", http.MethodPost, "/api/auth/admin/refresh", token, nil, struct{}{}, &resp); err != nil {
		return domain.Session{}, err
	}
	return resp.session()
}

// Verify asks the backend whether token is still a valid session.
func (c *Client) Verify(ctx context.Context, token string) (domain.Verification, error) {
	var resp verifyResponse
	if err := c.do(ctx, "verify", http.MethodGet, "/api/auth/admin/verify", token, nil, nil, &resp); err != nil {
		return domain.Verification{}, err
	}

	v := domain.Verification{Valid: resp.Valid, Admin: resp.Admin}
	if resp.SessionExpiresAt != nil {
		v.SessionExpiresAt = *resp.SessionExpiresAt
	}
	return v, nil
}

// Logout ends the session on the backend.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/auth/admin/logout", token, nil, struct{}{}, nil)
}

// Profile returns the operator profile.
func (c *Client) Profile(ctx context.Context, token string) (*domain.Admin, error) {
	var resp profileResponse
	if err := c.do(ctx, "profile", http.MethodGet, "/api/auth/admin/profile", token, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Admin == nil {
		return nil, ErrInvalidResponse
	}
	return resp.Admin, nil
}

func (r tokenResponse) session() (domain.Session, error) {
	if r.Token == "" {
		return domain.Session{}, fmt.Errorf("%w: missing token", ErrInvalidResponse)
	}

	s := domain.Session{Token: r.Token}
	if r.ExpiresAt != nil {
		s.ExpiresAt = *r.ExpiresAt
	} else if exp, ok := ExpiryFromToken(r.Token); ok {
		s.ExpiresAt = exp
	}
	return s, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path, token string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.BackendRequestDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	observability.BackendRequestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// readMessage extracts the backend's {"message": ...} error text, if any.
func readMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	if json.Unmarshal(data, &payload) != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
