package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery returns a middleware that converts handler panics into 500
// responses. The panic value and stack land in the log; the client only sees
// a generic error body. http.ErrAbortHandler is re-raised so the server keeps
// its usual connection-abort behaviour.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				zctx.From(r.Context()).Error("handler panic",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("value", rec),
					zap.Stack("stack"),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal error"}` + "\n"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
