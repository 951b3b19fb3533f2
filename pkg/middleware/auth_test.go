package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/citadel/pkg/contextkeys"
	"github.com/platinummonkey/citadel/pkg/policy"
	"github.com/platinummonkey/citadel/pkg/realm"
	"github.com/platinummonkey/citadel/pkg/security"
	"github.com/platinummonkey/citadel/pkg/token"
)

func newTestSecurity(t *testing.T, ttl time.Duration) *security.Service {
	t.Helper()

	tokens, err := token.NewHMACService(ttl)
	require.NoError(t, err)

	actions := policy.NewRegistry()
	security.RegisterActions(actions)
	cfg := policy.NewConfiguration(t.TempDir()+"/policies.json", actions, policy.NewCodec(), nil)
	require.NoError(t, cfg.Load())

	rlm := realm.NewDefault()
	return security.NewService(security.ServiceConfig{
		Realm:  rlm,
		Tokens: tokens,
		Bans:   security.NewMemoryBanTracker(security.DefaultBanConfig()),
		Engine: policy.NewEngine(cfg, policy.Env{Roles: rlm}, nil),
	})
}

func loginToken(t *testing.T, svc *security.Service, login string) string {
	t.Helper()
	_, tok, err := svc.Login(httptest.NewRequest("GET", "/", nil).Context(), "127.0.0.1", login, "secret")
	require.NoError(t, err)
	return tok
}

// identityEcho writes the bound identity's ID, or "anonymous".
func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := contextkeys.IdentityFrom(r.Context()); user != nil {
			w.Write([]byte(user.ID))
			return
		}
		w.Write([]byte("anonymous"))
	})
}

func TestAuthMiddleware_BearerToken(t *testing.T) {
	svc := newTestSecurity(t, time.Hour)
	handler := NewAuthMiddleware(svc, false).Handler(identityEcho())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+loginToken(t, svc, "alice"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestAuthMiddleware_SessionCookie(t *testing.T) {
	svc := newTestSecurity(t, time.Hour)
	handler := NewAuthMiddleware(svc, false).Handler(identityEcho())

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: svc.TokenService().Name(), Value: loginToken(t, svc, "alice")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestSecurity(t, time.Hour)
	handler := NewAuthMiddleware(svc, false).Handler(identityEcho())

	cases := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no token", func(r *http.Request) {}},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcg==") }},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-token") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestAuthMiddleware_ExpiredSession(t *testing.T) {
	svc := newTestSecurity(t, 10*time.Millisecond)
	handler := NewAuthMiddleware(svc, false).Handler(identityEcho())

	tok := loginToken(t, svc, "alice")
	time.Sleep(30 * time.Millisecond)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")
}

func TestAuthMiddleware_Optional(t *testing.T) {
	svc := newTestSecurity(t, time.Hour)
	handler := NewAuthMiddleware(svc, true).Handler(identityEcho())

	// Without a token the request passes through unauthenticated.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	// A bad token is still rejected, optional only covers absence.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestContext(t *testing.T) {
	var gotRequestID, gotClient string
	handler := RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = contextkeys.GetRequestID(r.Context())
		gotClient = contextkeys.GetClientAddr(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:41000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, gotRequestID, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "10.1.2.3", gotClient)

	// A caller-provided request ID is preserved.
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "req-123", gotRequestID)
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:41000"
	assert.Equal(t, "10.1.2.3", ClientAddr(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientAddr(req))
}
