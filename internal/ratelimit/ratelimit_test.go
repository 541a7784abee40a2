package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg *Config) (*MemoryRateLimiter, *time.Time) {
	t.Helper()
	rl := NewMemoryRateLimiter(cfg)
	t.Cleanup(rl.Close)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowWithinWindow(t *testing.T) {
	rl, now := newTestLimiter(t, GenerationConfig(3))

	for i := 0; i < 3; i++ {
		info := rl.Allow("10.0.0.1")
		require.True(t, info.Allowed, "request %d", i)
		assert.Equal(t, 2-i, info.Remaining)
	}

	info := rl.Allow("10.0.0.1")
	assert.False(t, info.Allowed)
	assert.False(t, info.Banned)
	assert.Equal(t, time.Minute, info.RetryAfter)

	assert.True(t, rl.Allow("10.0.0.2").Allowed, "other clients are unaffected")

	*now = now.Add(time.Minute)
	assert.True(t, rl.Allow("10.0.0.1").Allowed, "window reset")
}

func TestBanDuration(t *testing.T) {
	cfg := GenerationConfig(1)
	cfg.BanDuration = 10 * time.Minute
	rl, now := newTestLimiter(t, cfg)

	require.True(t, rl.Allow("ip").Allowed)
	info := rl.Allow("ip")
	require.True(t, info.Banned)

	*now = now.Add(5 * time.Minute)
	info = rl.Allow("ip")
	assert.False(t, info.Allowed)
	assert.Equal(t, 5*time.Minute, info.RetryAfter)

	*now = now.Add(5 * time.Minute)
	assert.True(t, rl.Allow("ip").Allowed)
}

func TestCleanupDropsExpired(t *testing.T) {
	rl, now := newTestLimiter(t, GenerationConfig(5))
	rl.Allow("a")
	*now = now.Add(2 * time.Minute)
	rl.Allow("b")

	rl.cleanup()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.records, "a")
	assert.Contains(t, rl.records, "b")
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:5123"
	assert.Equal(t, "192.0.2.7", GetClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", GetClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", GetClientIP(r))
}
