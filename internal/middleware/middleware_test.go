package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iyunix/go-medgemma/internal/ratelimit"
	"github.com/iyunix/go-medgemma/internal/services"
)

func observedLogger() (*services.ProductionLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return services.NewLoggerFromZap(zap.New(core), "test"), logs
}

func TestRequestIDAssignsAndReuses(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, id)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, id, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\n")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "not-a-uuid\n", seen)
}

func TestLoggingMiddlewareRecordsStatusAndKeepsFlusher(t *testing.T) {
	logger, logs := observedLogger()
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(logger))
	r.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/7", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.EqualValues(t, 5, fields["bytes"])
}

func TestRecoverPanic(t *testing.T) {
	logger, logs := observedLogger()
	h := RecoverPanic(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic in handler").Len())
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS("")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/chat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestRateLimitMiddleware(t *testing.T) {
	logger, _ := observedLogger()
	limiter := ratelimit.NewMemoryRateLimiter(ratelimit.GenerationConfig(1))
	defer limiter.Close()

	h := RateLimitMiddleware(limiter, "generation", logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), `"code":"rate_limited"`)
}
