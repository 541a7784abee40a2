// File: internal/middleware/ratelimit.go
package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/iyunix/go-medgemma/internal/ratelimit"
)

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(limiter *ratelimit.MemoryRateLimiter, name string, logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ratelimit.GetClientIP(r)
			info := limiter.Allow(clientIP)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))

			if !info.Allowed {
				logger.Warn("rate limited",
					"limiter", name,
					"client_ip", clientIP,
					"banned", info.Banned,
					"request_id", RequestIDFrom(r.Context()),
				)

				retryAfter := int(math.Ceil(info.RetryAfter.Seconds()))
				if retryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"success":     false,
					"error":       "Too many requests. Please try again later.",
					"code":        "rate_limited",
					"retry_after": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
