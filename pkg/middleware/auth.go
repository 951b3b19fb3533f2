// Package middleware provides the HTTP middleware chain of the security
// front door: request context propagation and token authentication.
package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/citadel/pkg/security"
)

// AuthMiddleware authenticates requests through the security service. The
// session cookie for browser clients is named by the token service; API
// clients use the Authorization header instead.
type AuthMiddleware struct {
	svc      *security.Service
	optional bool // If true, allow requests without a token
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(svc *security.Service, optional bool) *AuthMiddleware {
	return &AuthMiddleware{svc: svc, optional: optional}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := extractToken(r, m.svc.TokenService().Name())
		if !ok {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing session token")
			return
		}

		ctx, err := m.svc.Authenticate(r.Context(), ClientAddr(r), tok)
		if err != nil {
			if errors.Is(err, security.ErrExpiredSession) {
				m.unauthorizedResponse(w, "session expired")
				return
			}
			m.unauthorizedResponse(w, "invalid session token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken pulls the session token from the Authorization header or the
// session cookie, in that order.
func extractToken(r *http.Request, cookieName string) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
			return parts[1], true
		}
		return "", false
	}
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// ClientAddr returns the remote client address of a request, preferring the
// X-Forwarded-For header set by a trusted proxy.
func ClientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// The first entry is the originating client.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
