package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/gostt-live/internal/analyze"
	"github.com/chaz8081/gostt-live/internal/events"
	"github.com/chaz8081/gostt-live/internal/metrics"
)

const (
	// DefaultMaxInFlight bounds concurrent analysis calls when none is set.
	DefaultMaxInFlight = 4
	// DefaultQueueSize bounds transcripts waiting for a free worker.
	DefaultQueueSize = 16
)

// Analyzer is the part of analyze.Analyzer the fan-out needs.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*analyze.Result, error)
}

// FanoutConfig configures a Fanout.
type FanoutConfig struct {
	// Backend returns the current analyzer, or nil when analysis is
	// disabled. It is called once per transcript.
	Backend     func() Analyzer
	SessionID   string
	MaxInFlight int
	QueueSize   int           // pending transcripts kept while all workers are busy
	Timeout     time.Duration // per analysis call, 0 for none
	Retry       RetryPolicy
	Sink        events.Sink
	Metrics     *metrics.Metrics
}

type analysisJob struct {
	ctx     context.Context
	backend Analyzer
	chunk   string
	text    string
}

// Fanout runs one isolated analysis per accepted transcript on at most
// MaxInFlight goroutines. Transcripts arriving while every worker is busy
// wait in a bounded queue; when the queue is full the oldest one is dropped.
// Submit never blocks.
type Fanout struct {
	cfg FanoutConfig
	wg  sync.WaitGroup

	mu      sync.Mutex
	queue   []analysisJob
	running int
}

// NewFanout creates a fan-out with the given configuration.
func NewFanout(cfg FanoutConfig) *Fanout {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Fanout{cfg: cfg}
}

// Submit schedules analysis of text and returns immediately. The analysis
// is not cancelled with ctx.
func (f *Fanout) Submit(ctx context.Context, chunk, text string) {
	var backend Analyzer
	if f.cfg.Backend != nil {
		backend = f.cfg.Backend()
	}
	if backend == nil {
		slog.Debug("[ANALYZE] analysis disabled, skipping", "chunk", chunk)
		return
	}

	job := analysisJob{ctx: context.WithoutCancel(ctx), backend: backend, chunk: chunk, text: text}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running < f.cfg.MaxInFlight {
		f.running++
		f.wg.Add(1)
		go f.worker(job)
		return
	}
	if len(f.queue) >= f.cfg.QueueSize {
		slog.Warn("[ANALYZE] queue full, dropping oldest transcript", "chunk", f.queue[0].chunk)
		f.queue = f.queue[1:]
		f.cfg.Metrics.RecordAnalysisDropped()
	}
	f.queue = append(f.queue, job)
}

// Pending returns the number of transcripts waiting for a worker.
func (f *Fanout) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Wait blocks until every submitted analysis has finished.
func (f *Fanout) Wait() {
	f.wg.Wait()
}

// worker runs job, then keeps taking queued jobs until the queue is empty.
func (f *Fanout) worker(job analysisJob) {
	defer f.wg.Done()
	for {
		f.cfg.Metrics.AnalysisStarted()
		f.run(job.ctx, job.backend, job.chunk, job.text)
		f.cfg.Metrics.AnalysisFinished()

		f.mu.Lock()
		if len(f.queue) == 0 {
			f.running--
			f.mu.Unlock()
			return
		}
		job = f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
	}
}

func (f *Fanout) run(ctx context.Context, backend Analyzer, chunk, text string) {
	start := time.Now()
	res, err := f.analyze(ctx, backend, text)
	if err != nil {
		result := "error"
		var pe *panicError
		if errors.As(err, &pe) {
			result = "panic"
		}
		f.cfg.Metrics.RecordAnalysis(result, time.Since(start))
		slog.Warn("[ANALYZE] analysis failed", "chunk", chunk, "error", err)
		return
	}
	f.cfg.Metrics.RecordAnalysis("ok", time.Since(start))

	slog.Info("[ANALYZE] analysis ready", "chunk", chunk, "sentiment", res.Sentiment)
	if f.cfg.Sink == nil {
		return
	}
	f.cfg.Sink.Emit(events.Event{
		Kind:      events.KindAnalysis,
		SessionID: f.cfg.SessionID,
		Chunk:     chunk,
		Analysis: &events.Analysis{
			Objections:      res.Objections,
			ImportantPoints: res.ImportantPoints,
			Sentiment:       res.Sentiment,
			Suggestions:     res.Suggestions,
		},
	})
}

// panicError carries a recovered analyzer panic.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("pipeline: analyzer panicked: %v", e.value)
}

func (f *Fanout) analyze(ctx context.Context, backend Analyzer, text string) (res *analyze.Result, err error) {
	err = f.cfg.Retry.Do(ctx, func(ctx context.Context) (err error) {
		if f.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
			defer cancel()
		}
		defer func() {
			if r := recover(); r != nil {
				err = &panicError{value: r}
			}
		}()

		r, err := backend.Analyze(ctx, text)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("pipeline: analyzer returned no result")
		}
		res = r
		return nil
	}, func(attempt int, err error) {
		slog.Info("[ANALYZE] retrying analysis", "attempt", attempt+1, "error", err)
	})
	return res, err
}
