// File: internal/handlers/jobs_handler.go
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/iyunix/go-medgemma/internal/domain"
)

const (
	defaultJobsLimit = 50
	maxJobsLimit     = 500
)

// JobLister reads the job ledger.
type JobLister interface {
	Recent(ctx context.Context, limit int) ([]domain.JobRecord, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

type JobsHandler struct {
	ledger JobLister
	logger Logger
}

// NewJobsHandler accepts a nil ledger; the endpoint then answers 404.
func NewJobsHandler(ledger JobLister, logger Logger) *JobsHandler {
	return &JobsHandler{ledger: ledger, logger: logger}
}

// List returns the most recent jobs, newest first.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusNotFound, "LEDGER_DISABLED", "the job ledger is not enabled", "")
		return
	}

	limit := defaultJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxJobsLimit {
			writeError(w, http.StatusBadRequest, domain.CodeOutOfRange, "limit must be between 1 and 500", "limit")
			return
		}
		limit = n
	}

	jobs, err := h.ledger.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not read the job ledger", "")
		return
	}
	totals, err := h.ledger.CountByOutcome(r.Context())
	if err != nil {
		h.logger.Error("failed to count jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not read the job ledger", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"jobs":    jobs,
		"totals":  totals,
	})
}
