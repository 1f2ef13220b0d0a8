package httpmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

type ctxKeyRequestID struct{}

// RequestIDFromContext extracts the request ID from the context, or "" when
// none is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

// RequestID tags every request with an identifier for log correlation. The
// inbound header wins when it is sane; empty, oversized, or non-printable
// values are replaced with a fresh UUID. The final ID is echoed on the
// response and stored in the request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sanitizeRequestID(r.Header.Get(requestIDHeader))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sanitizeRequestID returns id when it is usable as-is, "" otherwise. Only
// printable ASCII is accepted; anything else could corrupt log lines or
// response headers.
func sanitizeRequestID(id string) string {
	if id == "" || len(id) > maxRequestIDLen {
		return ""
	}
	if strings.ContainsFunc(id, func(r rune) bool { return r < 0x20 || r > 0x7E }) {
		return ""
	}
	return id
}
