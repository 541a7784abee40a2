// File: internal/services/scheduler/types.go
package scheduler

import (
	"context"
	"time"

	"github.com/iyunix/go-medgemma/internal/services/ai"
)

// Logger interface for dependency injection
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Job is one accepted generation request.
type Job struct {
	ID         string
	Kind       string
	Request    ai.Request
	AcceptedAt time.Time
}

// Outcome classifies how a job ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeDropped is a job cancelled before it reached the model.
	OutcomeDropped  Outcome = "dropped"
	OutcomeRejected Outcome = "rejected"
)

// JobResult describes a terminated job. It carries no prompt text.
type JobResult struct {
	ID         string
	Kind       string
	Outcome    Outcome
	AcceptedAt time.Time
	QueueWait  time.Duration
	Duration   time.Duration
	Fragments  int
	Err        error
	// ForcedRelease is set when the slot was reclaimed before the model
	// call returned.
	ForcedRelease bool
}

// JobRecorder persists job results, e.g. the ledger repository.
type JobRecorder interface {
	RecordJob(ctx context.Context, result JobResult) error
}

// Metrics receives scheduler observations.
type Metrics interface {
	SetQueueDepth(n int)
	SetActive(active bool)
	ObserveQueueWait(kind string, d time.Duration)
	ObserveJob(kind string, outcome Outcome, d time.Duration)
	AddFragments(kind string, n int)
}

// Status is a point-in-time snapshot; reading it never waits on the queue.
type Status struct {
	Backend              string
	Model                string
	ModelLoaded          bool
	Device               string
	AcceleratorAvailable bool
	MemoryAllocatedBytes *int64
	QueueDepth           int
	GenerationActive     bool
}

type noopMetrics struct{}

func (noopMetrics) SetQueueDepth(int)                         {}
func (noopMetrics) SetActive(bool)                            {}
func (noopMetrics) ObserveQueueWait(string, time.Duration)    {}
func (noopMetrics) ObserveJob(string, Outcome, time.Duration) {}
func (noopMetrics) AddFragments(string, int)                  {}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
