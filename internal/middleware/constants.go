// File: internal/middleware/constants.go
package middleware

import "context"

// Context keys for middleware communication
type contextKey string

const (
	RequestIDKey contextKey = "request_id"

	RequestIDHeader = "X-Request-ID"
)

// RequestIDFrom returns the ID stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
