// File: internal/services/scheduler/scheduler.go
package scheduler

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iyunix/go-medgemma/internal/services/ai"
)

const (
	stateQueued int32 = iota
	stateRunning
	stateDropped
)

type pending struct {
	job        Job
	ctx        context.Context
	cancel     context.CancelCauseFunc
	stream     *Stream
	state      atomic.Int32
	enqueuedAt time.Time
	elem       *list.Element
}

// Scheduler admits generation jobs in FIFO order and runs at most one at a
// time against the shared model.
type Scheduler struct {
	model    ai.Model
	config   Config
	logger   Logger
	recorder JobRecorder
	metrics  Metrics

	// slot is held by the active job, ReleaseMemory or Shutdown.
	slot *semaphore.Weighted

	mu    sync.Mutex
	queue *list.List
	wake  chan struct{}

	active atomic.Bool
	closed atomic.Bool

	// recording tracks job results still being written after their slot
	// was released.
	recording sync.WaitGroup

	stopCtx context.Context
	stop    context.CancelFunc
	stopped chan struct{}
}

type Option func(*Scheduler)

func WithRecorder(r JobRecorder) Option { return func(s *Scheduler) { s.recorder = r } }
func WithMetrics(m Metrics) Option      { return func(s *Scheduler) { s.metrics = m } }

// New starts the dispatcher. Call Shutdown to stop it.
func New(model ai.Model, config Config, logger Logger, opts ...Option) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = nopLogger{}
	}
	stopCtx, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		model:   model,
		config:  config,
		logger:  logger,
		metrics: noopMetrics{},
		slot:    semaphore.NewWeighted(1),
		queue:   list.New(),
		wake:    make(chan struct{}, 1),
		stopCtx: stopCtx,
		stop:    stop,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.dispatch()
	return s, nil
}

// Submit queues a job. The job is bound to ctx: cancelling it drops a queued
// job or stops an active one. A full queue fails immediately with a BUSY
// error.
func (s *Scheduler) Submit(ctx context.Context, job Job) (*Stream, error) {
	if s.closed.Load() {
		return nil, newClosedError("submit")
	}
	if job.AcceptedAt.IsZero() {
		job.AcceptedAt = time.Now()
	}

	s.mu.Lock()
	if depth := s.queue.Len(); depth >= s.config.MaxQueue {
		s.mu.Unlock()
		s.logger.Warn("generation queue full, rejecting job", "job_id", job.ID, "kind", job.Kind, "depth", depth)
		s.metrics.ObserveJob(job.Kind, OutcomeRejected, 0)
		return nil, newBusyError(depth)
	}
	jobCtx, cancel := context.WithCancelCause(ctx)
	p := &pending{
		job:        job,
		ctx:        jobCtx,
		cancel:     cancel,
		stream:     newStream(job.ID, cancel),
		enqueuedAt: time.Now(),
	}
	p.elem = s.queue.PushBack(p)
	depth := s.queue.Len()
	s.mu.Unlock()

	s.metrics.SetQueueDepth(depth)
	s.logger.Debug("job queued", "job_id", job.ID, "kind", job.Kind, "depth", depth)

	go s.watchQueued(p)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return p.stream, nil
}

// watchQueued drops p if its context ends before the dispatcher picks it.
func (s *Scheduler) watchQueued(p *pending) {
	<-p.ctx.Done()
	if !p.state.CompareAndSwap(stateQueued, stateDropped) {
		return
	}
	s.mu.Lock()
	s.queue.Remove(p.elem)
	depth := s.queue.Len()
	s.mu.Unlock()
	s.metrics.SetQueueDepth(depth)

	err := s.interruptError(p)
	p.stream.finish(err)
	s.logger.Info("queued job dropped", "job_id", p.job.ID, "kind", p.job.Kind, "reason", context.Cause(p.ctx))
	s.record(JobResult{
		ID:         p.job.ID,
		Kind:       p.job.Kind,
		Outcome:    OutcomeDropped,
		AcceptedAt: p.job.AcceptedAt,
		QueueWait:  time.Since(p.enqueuedAt),
		Err:        err,
	})
}

func (s *Scheduler) dispatch() {
	defer close(s.stopped)
	for {
		if s.queueLen() == 0 {
			select {
			case <-s.wake:
			case <-s.stopCtx.Done():
				return
			}
			continue
		}
		if err := s.slot.Acquire(s.stopCtx, 1); err != nil {
			return
		}
		p := s.popNext()
		if p == nil {
			s.slot.Release(1)
			continue
		}
		s.execute(p)
	}
}

func (s *Scheduler) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// popNext removes the oldest job that has not been dropped.
func (s *Scheduler) popNext() *pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.queue.Front(); e != nil; e = s.queue.Front() {
		s.queue.Remove(e)
		p := e.Value.(*pending)
		if p.state.CompareAndSwap(stateQueued, stateRunning) {
			s.metrics.SetQueueDepth(s.queue.Len())
			return p
		}
	}
	s.metrics.SetQueueDepth(0)
	return nil
}

// execute runs p while holding the slot and releases it before returning.
// The result is recorded off the dispatcher so the next job is not held up.
func (s *Scheduler) execute(p *pending) {
	defer p.cancel(nil)

	started := time.Now()
	queueWait := started.Sub(p.enqueuedAt)
	s.active.Store(true)
	s.metrics.SetActive(true)
	s.metrics.ObserveQueueWait(p.job.Kind, queueWait)
	s.logger.Info("generation started", "job_id", p.job.ID, "kind", p.job.Kind, "queue_wait", queueWait)

	idle := time.AfterFunc(time.Hour, func() { p.cancel(errIdleTimeout) })
	idle.Stop()

	frags := make(chan string)
	genDone := make(chan error, 1)
	go func() {
		genDone <- s.generate(p, idle, frags)
	}()

	var (
		final       error
		returned    bool
		count       int
		interrupted bool
	)
loop:
	for {
		select {
		case frag := <-frags:
			idle.Reset(s.config.IdleTimeout)
			if p.ctx.Err() != nil {
				interrupted = true
				break loop
			}
			select {
			case p.stream.out <- frag:
				count++
			case <-p.ctx.Done():
				interrupted = true
				break loop
			}
		case err := <-genDone:
			returned = true
			final = s.classify(p, err)
			break loop
		case <-p.ctx.Done():
			interrupted = true
			break loop
		}
	}
	idle.Stop()

	if interrupted {
		final = s.interruptError(p)
	}
	p.stream.finish(final)

	forced := false
	if !returned {
		grace := time.NewTimer(s.config.ReleaseGrace)
		select {
		case <-genDone:
		case <-grace.C:
			forced = true
			s.logger.Warn("model call ignored cancellation, force-releasing generation slot",
				"job_id", p.job.ID, "grace", s.config.ReleaseGrace)
		}
		grace.Stop()
	}

	s.active.Store(false)
	s.metrics.SetActive(false)
	s.slot.Release(1)

	duration := time.Since(started)
	outcome := outcomeOf(final)
	s.metrics.AddFragments(p.job.Kind, count)
	if final != nil {
		s.logger.Warn("generation ended with error", "job_id", p.job.ID, "kind", p.job.Kind,
			"outcome", outcome, "fragments", count, "duration", duration, "error", final)
	} else {
		s.logger.Info("generation completed", "job_id", p.job.ID, "kind", p.job.Kind,
			"fragments", count, "duration", duration)
	}
	res := JobResult{
		ID:            p.job.ID,
		Kind:          p.job.Kind,
		Outcome:       outcome,
		AcceptedAt:    p.job.AcceptedAt,
		QueueWait:     queueWait,
		Duration:      duration,
		Fragments:     count,
		Err:           final,
		ForcedRelease: forced,
	}
	s.recording.Add(1)
	go func() {
		defer s.recording.Done()
		s.record(res)
	}()
}

// generate loads the model on first use and streams into frags.
func (s *Scheduler) generate(p *pending, idle *time.Timer, frags chan<- string) error {
	if !s.model.Loaded() {
		s.logger.Info("loading model for first request", "job_id", p.job.ID)
		if err := s.model.Load(p.ctx); err != nil {
			return newLoadError(p.job.ID, err)
		}
	}
	idle.Reset(s.config.IdleTimeout)
	return s.model.StreamCompletion(p.ctx, p.job.Request, func(frag string) error {
		select {
		case frags <- frag:
			return nil
		case <-p.ctx.Done():
			return context.Cause(p.ctx)
		}
	})
}

func (s *Scheduler) classify(p *pending, err error) error {
	if err == nil {
		return nil
	}
	if p.ctx.Err() != nil {
		return s.interruptError(p)
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return newGenerationError(p.job.ID, err)
}

// interruptError maps the cancellation cause of p onto a scheduler error.
func (s *Scheduler) interruptError(p *pending) error {
	cause := context.Cause(p.ctx)
	switch {
	case errors.Is(cause, errIdleTimeout):
		return &Error{Type: ErrTypeTimeout, Operation: "generate", JobID: p.job.ID,
			Message: "generation timed out after " + s.config.IdleTimeout.String() + " without output", Cause: cause}
	case errors.Is(cause, errShuttingDown):
		return &Error{Type: ErrTypeClosed, Operation: "generate", JobID: p.job.ID, Message: "scheduler is shutting down", Cause: cause}
	default:
		return &Error{Type: ErrTypeCancelled, Operation: "generate", JobID: p.job.ID, Message: "job cancelled", Cause: cause}
	}
}

func outcomeOf(err error) Outcome {
	var se *Error
	switch {
	case err == nil:
		return OutcomeCompleted
	case !errors.As(err, &se):
		return OutcomeFailed
	case se.Type == ErrTypeTimeout:
		return OutcomeTimeout
	case se.Type == ErrTypeCancelled, se.Type == ErrTypeClosed:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

func (s *Scheduler) record(r JobResult) {
	s.metrics.ObserveJob(r.Kind, r.Outcome, r.Duration)
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.RecordJob(ctx, r); err != nil {
		s.logger.Error("failed to record job", "job_id", r.ID, "error", err)
	}
}

// ReleaseMemory takes the slot like a job and asks the backend to drop its
// caches.
func (s *Scheduler) ReleaseMemory(ctx context.Context) error {
	if s.closed.Load() {
		return newClosedError("release_memory")
	}
	if err := s.slot.Acquire(ctx, 1); err != nil {
		return &Error{Type: ErrTypeCancelled, Operation: "release_memory", Message: "gave up waiting for the generation slot", Cause: err}
	}
	defer s.slot.Release(1)

	if !s.model.Loaded() {
		return nil
	}
	if err := s.model.ReleaseMemory(ctx); err != nil {
		return &Error{Type: ErrTypeGeneration, Operation: "release_memory", Message: "backend failed to release memory", Cause: err}
	}
	s.logger.Info("model memory released")
	return nil
}

// Status never waits on the queue or the slot.
func (s *Scheduler) Status() Status {
	ms := s.model.Status()
	return Status{
		Backend:              ms.Backend,
		Model:                ms.Model,
		ModelLoaded:          ms.Loaded,
		Device:               ms.Device,
		AcceleratorAvailable: ms.AcceleratorAvailable,
		MemoryAllocatedBytes: ms.MemoryAllocatedBytes,
		QueueDepth:           s.queueLen(),
		GenerationActive:     s.active.Load(),
	}
}

// Shutdown rejects new jobs, drops queued ones, waits for the active job
// and its record, then unloads the model.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	for e := s.queue.Front(); e != nil; e = e.Next() {
		e.Value.(*pending).cancel(errShuttingDown)
	}
	s.mu.Unlock()

	err := s.slot.Acquire(ctx, 1)
	s.stop()
	if err != nil {
		return &Error{Type: ErrTypeCancelled, Operation: "shutdown", Message: "active generation did not finish in time", Cause: err}
	}
	<-s.stopped

	recorded := make(chan struct{})
	go func() {
		s.recording.Wait()
		close(recorded)
	}()
	select {
	case <-recorded:
	case <-ctx.Done():
		s.logger.Warn("shutdown gave up waiting for job records", "error", ctx.Err())
	}

	if s.model.Loaded() {
		if err := s.model.Unload(ctx); err != nil {
			return &Error{Type: ErrTypeGeneration, Operation: "shutdown", Message: "unload model", Cause: err}
		}
	}
	s.logger.Info("scheduler stopped")
	return nil
}
