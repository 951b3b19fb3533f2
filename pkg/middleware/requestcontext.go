package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/citadel/pkg/contextkeys"
)

// RequestContext stamps every request with a request ID and the resolved
// client address so downstream code (ban tracking, audit, logging) can read
// them from the context.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		ctx = contextkeys.WithClientAddr(ctx, ClientAddr(r))

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
