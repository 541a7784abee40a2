// File: internal/handlers/router.go
package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-medgemma/internal/middleware"
	"github.com/iyunix/go-medgemma/internal/ratelimit"
)

type RouterConfig struct {
	Analysis *AnalysisHandler
	Health   *HealthHandler
	Jobs     *JobsHandler
	Log      *LogHandler
	Logger   Logger

	// Limiter guards the routes that reach the model; nil disables it.
	Limiter    *ratelimit.MemoryRateLimiter
	CORSOrigin string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter wires every endpoint and the middleware chain. CORS wraps the
// router so preflight requests are answered before route matching.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RecoverPanic(cfg.Logger))
	r.Use(middleware.LoggingMiddleware(cfg.Logger))

	r.HandleFunc("/", cfg.Health.Root).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	// Routes stay flat on r: mux loses method mismatches inside subrouters.
	r.HandleFunc("/api/health", cfg.Health.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/example-questions", cfg.Analysis.ExampleQuestions).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs", cfg.Jobs.List).Methods(http.MethodGet)
	r.HandleFunc("/api/log", cfg.Log.LogFrontendEvent).Methods(http.MethodPost)

	// Routes that occupy the model
	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return h
		}
		return middleware.RateLimitMiddleware(cfg.Limiter, "generation", cfg.Logger)(h)
	}
	r.Handle("/api/chat", limited(cfg.Analysis.Chat)).Methods(http.MethodPost)
	r.Handle("/api/analyze-xray", limited(cfg.Analysis.AnalyzeXRay)).Methods(http.MethodPost)
	r.Handle("/api/analyze-medical-image", limited(cfg.Analysis.AnalyzeMedicalImage)).Methods(http.MethodPost)
	r.Handle("/api/analyze-dicom", limited(cfg.Analysis.AnalyzeDICOM)).Methods(http.MethodPost)
	r.Handle("/api/drug-info", limited(cfg.Analysis.DrugInfo)).Methods(http.MethodPost)
	r.Handle("/api/symptom-check", limited(cfg.Analysis.SymptomCheck)).Methods(http.MethodPost)
	r.Handle("/api/compare-images", limited(cfg.Analysis.CompareImages)).Methods(http.MethodPost)
	r.Handle("/api/clear-cache", limited(cfg.Analysis.ClearCache)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", "")
	})
	return middleware.CORS(cfg.CORSOrigin)(r)
}
