// File: internal/handlers/stream.go
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

// Emitter writes a job's fragments to the client as plain text and closes
// the response with an elapsed or error marker.
type Emitter struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	accepted time.Time
	now      func() time.Time
	started  bool
	gone     bool
}

// NewEmitter times the response from accepted, the moment the request was
// admitted.
func NewEmitter(w http.ResponseWriter, accepted time.Time, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	f, _ := w.(http.Flusher)
	return &Emitter{w: w, flusher: f, accepted: accepted, now: now}
}

// Relay copies the stream to the client in order. When the client goes away
// the job is cancelled and nothing more is written.
func (e *Emitter) Relay(ctx context.Context, s *scheduler.Stream) error {
	frags := s.Fragments()
	for {
		select {
		case frag, ok := <-frags:
			if !ok {
				return e.finish(s.Err())
			}
			if err := e.write(frag); err != nil {
				s.Cancel()
				drain(frags)
				return err
			}
		case <-ctx.Done():
			s.Cancel()
			drain(frags)
			e.gone = true
			return ctx.Err()
		}
	}
}

// finish writes the terminal marker. A job that fails before its first
// fragment writes nothing, so the caller can still answer with a JSON error.
func (e *Emitter) finish(err error) error {
	if err != nil {
		if !e.started {
			return err
		}
		if werr := e.write(fmt.Sprintf("\n\n[error: %s]", markerMessage(err))); werr != nil {
			return werr
		}
		return err
	}
	elapsed := e.now().Sub(e.accepted).Seconds()
	return e.write(fmt.Sprintf("\n\n[elapsed: %.2fs]", elapsed))
}

func (e *Emitter) write(s string) error {
	if e.gone {
		return io.ErrClosedPipe
	}
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	if _, err := io.WriteString(e.w, s); err != nil {
		e.gone = true
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Committed reports whether the response can no longer carry a JSON error,
// because output started or the client is gone.
func (e *Emitter) Committed() bool { return e.started || e.gone }

func drain(frags <-chan string) {
	for range frags {
	}
}
