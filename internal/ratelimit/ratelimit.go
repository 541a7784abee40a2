// File: internal/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds rate limiting configuration
type Config struct {
	WindowSize    time.Duration // Time window for rate limiting
	MaxRequests   int           // Maximum requests per window
	CleanupPeriod time.Duration // How often to clean up old entries
	// BanDuration blocks a client after it exceeds the limit. Zero means the
	// client is only held back until its window resets.
	BanDuration time.Duration
}

// GenerationConfig limits requests that reach the model queue.
func GenerationConfig(perMinute int) *Config {
	return &Config{
		WindowSize:    time.Minute,
		MaxRequests:   perMinute,
		CleanupPeriod: 5 * time.Minute,
	}
}

// record tracks requests for an IP/identifier
type record struct {
	Count     int
	FirstSeen time.Time
	BannedAt  *time.Time
}

// Info contains information about rate limit status
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
	Banned     bool
}

// MemoryRateLimiter implements in-memory fixed window rate limiting
type MemoryRateLimiter struct {
	config  *Config
	records map[string]*record
	mu      sync.Mutex
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryRateLimiter creates a limiter and starts its cleanup goroutine.
func NewMemoryRateLimiter(config *Config) *MemoryRateLimiter {
	limiter := &MemoryRateLimiter{
		config:  config,
		records: make(map[string]*record),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go limiter.cleanupLoop()
	return limiter
}

// Allow checks if a request should be allowed
func (rl *MemoryRateLimiter) Allow(identifier string) Info {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rec, exists := rl.records[identifier]

	if exists && rec.BannedAt != nil {
		if until := rec.BannedAt.Add(rl.config.BanDuration); now.Before(until) {
			return Info{
				Limit:      rl.config.MaxRequests,
				ResetTime:  until,
				RetryAfter: until.Sub(now),
				Banned:     true,
			}
		}
	}

	if !exists || now.Sub(rec.FirstSeen) >= rl.config.WindowSize || rec.BannedAt != nil {
		rl.records[identifier] = &record{Count: 1, FirstSeen: now}
		return Info{
			Allowed:   true,
			Limit:     rl.config.MaxRequests,
			Remaining: rl.config.MaxRequests - 1,
			ResetTime: now.Add(rl.config.WindowSize),
		}
	}

	rec.Count++
	reset := rec.FirstSeen.Add(rl.config.WindowSize)
	if rec.Count > rl.config.MaxRequests {
		if rl.config.BanDuration > 0 {
			banTime := now
			rec.BannedAt = &banTime
			return Info{
				Limit:      rl.config.MaxRequests,
				ResetTime:  now.Add(rl.config.BanDuration),
				RetryAfter: rl.config.BanDuration,
				Banned:     true,
			}
		}
		return Info{
			Limit:      rl.config.MaxRequests,
			ResetTime:  reset,
			RetryAfter: reset.Sub(now),
		}
	}

	return Info{
		Allowed:   true,
		Limit:     rl.config.MaxRequests,
		Remaining: rl.config.MaxRequests - rec.Count,
		ResetTime: reset,
	}
}

// cleanupLoop periodically removes old records
func (rl *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup removes expired records
func (rl *MemoryRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for identifier, rec := range rl.records {
		windowExpired := now.Sub(rec.FirstSeen) >= rl.config.WindowSize
		banExpired := rec.BannedAt != nil && now.Sub(*rec.BannedAt) >= rl.config.BanDuration
		if (windowExpired && rec.BannedAt == nil) || banExpired {
			delete(rl.records, identifier)
		}
	}
}

// Close stops the cleanup goroutine
func (rl *MemoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// GetClientIP extracts the real client IP from request
func GetClientIP(r *http.Request) string {
	// Behind a proxy the first forwarded address is the client
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
