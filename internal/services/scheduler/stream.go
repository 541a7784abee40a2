// File: internal/services/scheduler/stream.go
package scheduler

import "context"

// Stream delivers the fragments of one job in production order.
type Stream struct {
	id     string
	out    chan string
	err    error
	cancel context.CancelCauseFunc
}

func newStream(id string, cancel context.CancelCauseFunc) *Stream {
	return &Stream{id: id, out: make(chan string), cancel: cancel}
}

// ID returns the job ID.
func (s *Stream) ID() string { return s.id }

// Fragments is closed when the job terminates.
func (s *Stream) Fragments() <-chan string { return s.out }

// Err returns the terminal error; nil means the generation completed. It is
// only meaningful after Fragments is closed.
func (s *Stream) Err() error { return s.err }

// Cancel stops the job whether it is queued or active.
func (s *Stream) Cancel() { s.cancel(nil) }

// finish records the terminal error and closes the fragment channel. The
// close publishes err to readers of Fragments.
func (s *Stream) finish(err error) {
	s.err = err
	close(s.out)
}

// Collect drains the stream into a single string.
func (s *Stream) Collect(ctx context.Context) (string, error) {
	var b []byte
	for {
		select {
		case frag, ok := <-s.out:
			if !ok {
				return string(b), s.err
			}
			b = append(b, frag...)
		case <-ctx.Done():
			s.Cancel()
			for range s.out {
			}
			return string(b), s.err
		}
	}
}
