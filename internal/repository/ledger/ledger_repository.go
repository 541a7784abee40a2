// File: internal/repository/ledger/ledger_repository.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iyunix/go-medgemma/internal/domain"
	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
	maxErrorLength     = 512
)

var ErrInvalidLimit = errors.New("limit must be between 1 and 500")

type Logger interface {
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

type gormJobLedger struct {
	db     *gorm.DB
	logger Logger
}

// Open connects to the sqlite file at path and migrates the ledger table.
// Tests use a named shared-cache memory database.
func Open(path string, log Logger) (JobLedger, *gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger database: %w", err)
	}
	if err := db.AutoMigrate(&domain.JobRecord{}); err != nil {
		return nil, nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return NewJobLedger(db, log), db, nil
}

func NewJobLedger(db *gorm.DB, log Logger) JobLedger {
	return &gormJobLedger{db: db, logger: log}
}

// RecordJob inserts one row per terminated job.
func (r *gormJobLedger) RecordJob(ctx context.Context, res scheduler.JobResult) error {
	if res.ID == "" {
		return errors.New("job result has no ID")
	}

	rec := &domain.JobRecord{
		ID:            res.ID,
		Kind:          res.Kind,
		Outcome:       string(res.Outcome),
		QueueWaitMs:   res.QueueWait.Milliseconds(),
		DurationMs:    res.Duration.Milliseconds(),
		Fragments:     res.Fragments,
		ForcedRelease: res.ForcedRelease,
		AcceptedAt:    res.AcceptedAt,
	}
	if res.Err != nil {
		rec.Error = truncateError(res.Err.Error())
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		r.logger.Error("ledger insert failed", "job_id", res.ID, "error", err)
		return fmt.Errorf("database error recording job %s: %w", res.ID, err)
	}
	r.logger.Debug("job recorded", "job_id", res.ID, "outcome", rec.Outcome)
	return nil
}

// truncateError caps msg at maxErrorLength bytes without splitting a rune.
func truncateError(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	n := maxErrorLength
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}

// Recent returns the newest rows first.
func (r *gormJobLedger) Recent(ctx context.Context, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 || limit > MaxRecentLimit {
		return nil, ErrInvalidLimit
	}

	var rows []domain.JobRecord
	err := r.db.WithContext(ctx).
		Order("accepted_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		r.logger.Error("ledger query failed", "error", err)
		return nil, errors.New("database error fetching jobs")
	}
	return rows, nil
}

func (r *gormJobLedger) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Total   int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.JobRecord{}).
		Select("outcome, count(*) as total").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		r.logger.Error("ledger count failed", "error", err)
		return nil, errors.New("database error counting jobs")
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Outcome] = row.Total
	}
	return out, nil
}
