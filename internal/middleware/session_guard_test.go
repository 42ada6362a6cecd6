package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"scribe-console/internal/domain"
	"scribe-console/internal/guard"
	"scribe-console/internal/service"
	"scribe-console/internal/testutil"

	"github.com/stretchr/testify/assert"
)

func verifierReturning(res service.VerifyResult, calls *atomic.Int32) guard.Verifier {
	return guard.VerifierFunc(func(ctx context.Context) service.VerifyResult {
		calls.Add(1)
		return res
	})
}

func TestSessionGuard_Allowed(t *testing.T) {
	admin := testutil.NewTestAdmin()
	var calls atomic.Int32

	var seen *domain.Admin
	handler := SessionGuard(verifierReturning(service.VerifyResult{Valid: true, Admin: admin}, &calls), "/auth/login", nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = GetAdmin(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, admin, seen)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSessionGuard_RedirectsBrowser(t *testing.T) {
	var calls atomic.Int32
	called := false
	handler := SessionGuard(verifierReturning(service.VerifyResult{Reason: domain.ReasonNoToken}, &calls), "/auth/login", nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/views/users", nil))

	testutil.AssertLoginRedirect(t, w, "/auth/login")
	testutil.AssertFalse(t, called, "protected handler must not run")
}

func TestSessionGuard_JSONClientGets401(t *testing.T) {
	var calls atomic.Int32
	handler := SessionGuard(verifierReturning(service.VerifyResult{Reason: domain.ReasonVerifyRejected}, &calls), "/auth/login", nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, testutil.NewJSONRequest(t, http.MethodGet, "/api/session", nil))

	testutil.AssertJSONLoginRedirect(t, w, "/auth/login")
}

func TestSessionGuard_RejectRunsTeardown(t *testing.T) {
	var calls, rejected atomic.Int32
	onReject := func(context.Context) { rejected.Add(1) }

	denied := SessionGuard(verifierReturning(service.VerifyResult{Reason: domain.ReasonRenewRejected}, &calls), "/auth/login", onReject)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	denied.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/views/users", nil))
	testutil.AssertLoginRedirect(t, w, "/auth/login")
	assert.Equal(t, int32(1), rejected.Load())

	allowed := SessionGuard(verifierReturning(service.VerifyResult{Valid: true}, &calls), "/auth/login", onReject)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	allowed.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/views/users", nil))
	assert.Equal(t, int32(1), rejected.Load(), "an admitted request tears nothing down")
}

func TestSessionGuard_VerifiesEveryRequest(t *testing.T) {
	var calls atomic.Int32
	handler := SessionGuard(verifierReturning(service.VerifyResult{Valid: true}, &calls), "/auth/login", nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/session", nil))
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestSessionGuard_PanickingVerifierRedirects(t *testing.T) {
	v := guard.VerifierFunc(func(ctx context.Context) service.VerifyResult { panic("verify exploded") })
	handler := SessionGuard(v, "/auth/login", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	testutil.AssertLoginRedirect(t, w, "/auth/login")
}

func TestWantsJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, wantsJSON(r))

	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	assert.True(t, wantsJSON(r))
}
