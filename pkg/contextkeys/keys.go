// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// The bound identity is scoped to one request context at a time: it is set at
// login/authenticate, cleared at logout, and must never be shared between
// concurrent requests through a package-level variable.
package contextkeys

import (
	"context"

	"github.com/platinummonkey/citadel/pkg/identity"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *identity.User
	// Set by: security.Service Login/Authenticate, middleware.AuthMiddleware
	// Required by: security.Service.CheckAction, all gated operations
	IdentityKey Key = "identity"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware
	// Used by: Logger, audit trail
	RequestIDKey Key = "request_id"

	// ClientAddrKey contains the remote client address string
	// Set by: HTTP middleware
	// Used by: ban tracking, audit trail
	ClientAddrKey Key = "client_addr"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"
)

// WithIdentity binds an identity to the context. Passing nil clears the
// binding, which is how logout is expressed.
func WithIdentity(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, IdentityKey, user)
}

// IdentityFrom retrieves the bound identity from the context, or nil if no
// identity is bound.
func IdentityFrom(ctx context.Context) *identity.User {
	if user, ok := ctx.Value(IdentityKey).(*identity.User); ok {
		return user
	}
	return nil
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithClientAddr adds the remote client address to the context
func WithClientAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ClientAddrKey, addr)
}

// GetClientAddr retrieves the remote client address from context
func GetClientAddr(ctx context.Context) string {
	if addr, ok := ctx.Value(ClientAddrKey).(string); ok {
		return addr
	}
	return ""
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
