// File: internal/domain/job.go
package domain

import "time"

// JobRecord is one ledger row for a terminated generation job. It holds
// operational data only, never prompt text or patient fields.
type JobRecord struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	Kind          string    `json:"kind" gorm:"size:32;index;not null"`
	Outcome       string    `json:"outcome" gorm:"size:16;index;not null"`
	QueueWaitMs   int64     `json:"queue_wait_ms"`
	DurationMs    int64     `json:"duration_ms"`
	Fragments     int       `json:"fragments"`
	Error         string    `json:"error,omitempty" gorm:"size:512"`
	ForcedRelease bool      `json:"forced_release"`
	AcceptedAt    time.Time `json:"accepted_at" gorm:"index"`
	CreatedAt     time.Time `json:"created_at"`
}
