package realtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-live/internal/pipeline"
)

// Session is one start-to-stop recording run. It owns the chunks written to
// Dir after StartTime and the set of chunks already processed.
type Session struct {
	ID        string
	StartTime time.Time
	Dir       string

	active    atomic.Bool
	processed *pipeline.ProcessedSet
	fanout    *pipeline.Fanout
	loopDone  chan struct{}
}

func newSession(dir string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Dir:       dir,
		processed: pipeline.NewProcessedSet(),
		loopDone:  make(chan struct{}),
	}
}

// Active reports whether the session is still recording.
func (s *Session) Active() bool {
	return s.active.Load()
}

// Processed returns the number of chunks dispatched so far.
func (s *Session) Processed() int {
	return s.processed.Len()
}

// Done is closed when the discovery loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.loopDone
}

// Wait blocks until the discovery loop has exited and every analysis it
// started has finished.
func (s *Session) Wait() {
	<-s.loopDone
	if s.fanout != nil {
		s.fanout.Wait()
	}
}

// WaitContext is Wait bounded by ctx. It returns ctx.Err() if ctx ends
// first.
func (s *Session) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
