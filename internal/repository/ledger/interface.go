// File: internal/repository/ledger/interface.go
package ledger

import (
	"context"

	"github.com/iyunix/go-medgemma/internal/domain"
	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

// JobLedger stores the outcome of every generation job.
type JobLedger interface {
	scheduler.JobRecorder
	Recent(ctx context.Context, limit int) ([]domain.JobRecord, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}
