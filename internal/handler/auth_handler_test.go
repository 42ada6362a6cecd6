package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"scribe-console/internal/backend"
	"scribe-console/internal/domain"
	"scribe-console/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_Login_JSON(t *testing.T) {
	tm, store, api := newTokenManager(nil)
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	admin := testutil.NewTestAdmin()

	api.LoginFunc = func(ctx context.Context, email, password string) (domain.Session, error) {
		assert.Equal(t, "root@example.com", email)
		assert.Equal(t, "secret", password)
		return domain.Session{Token: "tok-1", ExpiresAt: expires}, nil
	}
	api.ProfileFunc = func(ctx context.Context, token string) (*domain.Admin, error) {
		return admin, nil
	}

	h := NewAuthHandler(tm, nil)
	w := httptest.NewRecorder()
	h.Login(w, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "root@example.com",
		Password: "secret",
	}))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[LoginResponse](t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.ExpiresAt)
	assert.True(t, expires.Equal(*resp.ExpiresAt))
	assert.Equal(t, admin.Email, resp.Admin.Email)

	stored, ok := store.Stored()
	require.True(t, ok)
	assert.Equal(t, "tok-1", stored.Token)
}

func TestAuthHandler_Login_Form(t *testing.T) {
	tm, _, api := newTokenManager(nil)
	api.LoginFunc = func(ctx context.Context, email, password string) (domain.Session, error) {
		return domain.Session{Token: "tok-form"}, nil
	}

	req := testutil.NewFormRequest(t, "/auth/login", url.Values{"email": {"a@b.c"}, "password": {"pw"}})
	w := httptest.NewRecorder()

	NewAuthHandler(tm, nil).Login(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[LoginResponse](t, w)
	assert.Nil(t, resp.ExpiresAt, "no expiry known")
	assert.Nil(t, resp.Admin, "profile failure is not fatal")
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		loginErr error
		status   int
		message  string
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest, "Invalid request body"},
		{"missing password", `{"email":"a@b.c"}`, nil, http.StatusBadRequest, "required"},
		{"bad credentials", `{"email":"a@b.c","password":"x"}`, &backend.StatusError{StatusCode: 401}, http.StatusUnauthorized, "Invalid email or password"},
		{"backend down", `{"email":"a@b.c","password":"x"}`, &backend.StatusError{StatusCode: 503}, http.StatusBadGateway, "Login failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm, store, api := newTokenManager(nil)
			api.LoginFunc = func(ctx context.Context, email, password string) (domain.Session, error) {
				return domain.Session{}, tt.loginErr
			}

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			NewAuthHandler(tm, nil).Login(w, req)

			testutil.AssertJSONError(t, w, tt.status, tt.message)
			_, ok := store.Stored()
			assert.False(t, ok)
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	session := testutil.NewTestSession()
	tm, store, api := newTokenManager(&session)

	var tornDown bool
	h := NewAuthHandler(tm, func(ctx context.Context) { tornDown = true })

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.True(t, tornDown)
	assert.Equal(t, int32(1), api.LogoutCalls.Load())
	_, ok := store.Stored()
	assert.False(t, ok)
}

func TestAuthHandler_LoginPage(t *testing.T) {
	session := testutil.NewTestSession()
	tm, _, _ := newTokenManager(&session)

	w := httptest.NewRecorder()
	NewAuthHandler(tm, nil).LoginPage(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	body := testutil.AssertJSONResponse(t, w, http.StatusOK)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "/auth/login", body["path"])
}
