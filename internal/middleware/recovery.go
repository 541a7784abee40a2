// File: internal/middleware/recovery.go
package middleware

import (
	"net/http"
	"runtime/debug"
)

// RecoverPanic turns a handler panic into a 500 and logs the stack.
func RecoverPanic(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic in handler",
						"panic", err,
						"path", r.URL.Path,
						"request_id", RequestIDFrom(r.Context()),
						"stack", string(debug.Stack()),
					)
					w.Header().Set("Connection", "close")
					http.Error(w, "Something went wrong on our end.", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
