// File: cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iyunix/go-medgemma/internal/config"
	"github.com/iyunix/go-medgemma/internal/handlers"
	"github.com/iyunix/go-medgemma/internal/imaging"
	"github.com/iyunix/go-medgemma/internal/metrics"
	"github.com/iyunix/go-medgemma/internal/ratelimit"
	"github.com/iyunix/go-medgemma/internal/repository/ledger"
	"github.com/iyunix/go-medgemma/internal/services"
	"github.com/iyunix/go-medgemma/internal/services/ai"
	"github.com/iyunix/go-medgemma/internal/services/prompt"
	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	logger, err := services.NewLogger("medgemma-gateway", services.LogOptions{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("FATAL: failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// --- Model ---
	model, err := ai.NewModel(cfg.AIConfig())
	if err != nil {
		logger.Error("failed to initialize model backend", "backend", cfg.ModelBackend, "error", err)
		os.Exit(1)
	}

	// --- Scheduler ---
	opts := []scheduler.Option{scheduler.WithMetrics(metrics.SchedulerMetrics{})}

	var jobs *handlers.JobsHandler
	if cfg.LedgerPath != "" {
		jobLedger, db, err := ledger.Open(cfg.LedgerPath, logger.Named("ledger"))
		if err != nil {
			logger.Error("failed to open job ledger", "path", cfg.LedgerPath, "error", err)
			os.Exit(1)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		opts = append(opts, scheduler.WithRecorder(jobLedger))
		jobs = handlers.NewJobsHandler(jobLedger, logger)
		logger.Info("job ledger enabled", "path", cfg.LedgerPath)
	} else {
		jobs = handlers.NewJobsHandler(nil, logger)
	}

	sched, err := scheduler.New(model, cfg.SchedulerConfig(), logger.Named("scheduler"), opts...)
	if err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// --- Request pipeline ---
	decoder, err := imaging.NewDecoder(cfg.ImagingConfig(), logger.Named("imaging"))
	if err != nil {
		logger.Error("failed to initialize image decoder", "error", err)
		os.Exit(1)
	}
	builder := prompt.NewBuilder(logger.Named("prompt"))

	analysis := handlers.NewAnalysisHandler(
		builder, decoder, sched, sched, logger.Named("analysis"),
		handlers.DefaultAnalysisConfig(cfg.MaxImageBytes),
	)

	var limiter *ratelimit.MemoryRateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewMemoryRateLimiter(ratelimit.GenerationConfig(cfg.RateLimitPerMinute))
		defer limiter.Close()
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Analysis:   analysis,
		Health:     handlers.NewHealthHandler(sched),
		Jobs:       jobs,
		Log:        handlers.NewLogHandler(logger.Named("client")),
		Logger:     logger.Named("http"),
		Limiter:    limiter,
		CORSOrigin: cfg.CORSOrigin,
		Metrics:    promhttp.Handler(),
	})

	// --- Server Configuration ---
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting",
		"port", cfg.ServerPort,
		"env", cfg.Environment,
		"backend", cfg.ModelBackend,
		"model", cfg.ModelName,
		"device", cfg.ModelDevice,
		"max_queue", cfg.SchedulerMaxQueue,
	)

	// --- Start Server in Goroutine ---
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down server gracefully", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server startup failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if err := sched.Shutdown(ctx); err != nil {
		logger.Error("scheduler shutdown failed", "error", err)
	}
	logger.Info("server stopped gracefully")
}
