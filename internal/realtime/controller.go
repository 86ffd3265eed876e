// Package realtime coordinates a live session: capture writes chunks, the
// discovery loop transcribes them, and analyses fan out in the background.
// Controller is the control surface used by the command layer.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/chaz8081/gostt-live/internal/analyze"
	"github.com/chaz8081/gostt-live/internal/audio"
	"github.com/chaz8081/gostt-live/internal/config"
	"github.com/chaz8081/gostt-live/internal/events"
	"github.com/chaz8081/gostt-live/internal/metrics"
	"github.com/chaz8081/gostt-live/internal/pipeline"
	"github.com/chaz8081/gostt-live/internal/transcribe"
)

var (
	// ErrNotInitialized is returned when an operation needs a backend that
	// has not been initialized.
	ErrNotInitialized = errors.New("realtime: backend not initialized")
	// ErrSessionActive is returned by StartSession while a session runs.
	ErrSessionActive = errors.New("realtime: session already active")
	// ErrNoSession is returned by StopSession when nothing is recording.
	ErrNoSession = errors.New("realtime: no active session")
)

// DeviceLister enumerates input devices.
type DeviceLister interface {
	Devices() ([]audio.DeviceInfo, error)
}

// Controller owns the backends, the event bus and at most one active
// session.
type Controller struct {
	cfg     *config.Config
	driver  audio.Driver
	metrics *metrics.Metrics
	bus     *events.Bus

	backendMu   sync.RWMutex
	transcriber transcribe.Transcriber
	analyzer    analyze.Analyzer

	startMu sync.Mutex // serializes StartSession

	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	engine  *audio.Engine
	session *Session
}

// New creates a controller. m may be nil.
func New(cfg *config.Config, driver audio.Driver, m *metrics.Metrics) *Controller {
	return &Controller{
		cfg:     cfg,
		driver:  driver,
		metrics: m,
		bus:     events.NewBus(256),
	}
}

// InitTranscriber builds the transcription backend from cfg and installs
// it, closing any previous one.
func (c *Controller) InitTranscriber(cfg *config.TranscribeConfig) error {
	t, err := transcribe.New(cfg)
	if err != nil {
		return err
	}
	c.SetTranscriber(t)
	slog.Info("[TRANSCRIBE] backend ready", "backend", cfg.Backend, "model", cfg.Model)
	return nil
}

// SetTranscriber installs t as the transcription backend.
func (c *Controller) SetTranscriber(t transcribe.Transcriber) {
	c.backendMu.Lock()
	old := c.transcriber
	c.transcriber = t
	c.backendMu.Unlock()

	if old != nil && old != t {
		if err := old.Close(); err != nil {
			slog.Warn("[TRANSCRIBE] closing previous backend", "error", err)
		}
	}
}

// InitAnalyzer builds the analysis backend from cfg and installs it. The
// "none" backend disables analysis.
func (c *Controller) InitAnalyzer(cfg *config.AnalyzeConfig) error {
	a, err := analyze.New(cfg)
	if err != nil {
		return err
	}
	c.SetAnalyzer(a)
	if a == nil {
		slog.Info("[ANALYZE] analysis disabled")
	} else {
		slog.Info("[ANALYZE] backend ready", "backend", cfg.Backend, "model", cfg.Model)
	}
	return nil
}

// SetAnalyzer installs a as the analysis backend; nil disables analysis.
func (c *Controller) SetAnalyzer(a analyze.Analyzer) {
	c.backendMu.Lock()
	c.analyzer = a
	c.backendMu.Unlock()
}

func (c *Controller) currentTranscriber() pipeline.Transcriber {
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	if c.transcriber == nil {
		return nil
	}
	return c.transcriber
}

func (c *Controller) currentAnalyzer() pipeline.Analyzer {
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	if c.analyzer == nil {
		return nil
	}
	return c.analyzer
}

// Subscribe registers h as the single event subscriber, replacing any
// previous one. The returned function unregisters it.
func (c *Controller) Subscribe(h events.Handler) (unsubscribe func()) {
	return c.bus.Subscribe(h)
}

// StartSession starts capture and the discovery loop. Device failures and a
// missing transcription backend are returned and nothing is started. ctx
// bounds the discovery loop; cancel it or call StopSession to end it.
func (c *Controller) StartSession(ctx context.Context) (*Session, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	prev := c.session
	c.mu.Unlock()

	if prev != nil && prev.Active() {
		return nil, ErrSessionActive
	}
	if c.currentTranscriber() == nil {
		return nil, fmt.Errorf("%w: transcription", ErrNotInitialized)
	}
	// The previous loop's final scan must not see this session's chunks.
	// Its in-flight analyses are not waited for.
	if prev != nil {
		select {
		case <-prev.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.cfg.Audio.OutputDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("realtime: create output dir: %w", err)
	}
	if c.cfg.Audio.CleanOnStart {
		n, err := audio.CleanChunks(dir)
		if err != nil {
			slog.Warn("[CAPTURE] cleaning old chunks failed", "dir", dir, "error", err)
		} else if n > 0 {
			slog.Info("[CAPTURE] removed old chunks", "dir", dir, "count", n)
		}
	}

	sess := newSession(dir)
	engine := audio.NewEngine(c.driver, audio.EngineConfig{
		Device: audio.DeviceRequest{
			Name:       c.cfg.Audio.Device,
			SampleRate: c.cfg.Audio.SampleRate,
			Channels:   c.cfg.Audio.Channels,
		},
		ChunkSeconds: c.cfg.Audio.ChunkSeconds,
	})
	engine.OnChunk = func(ch audio.Chunk) {
		c.metrics.RecordChunkFinalized(ch.Samples)
	}
	if err := engine.Start(dir); err != nil {
		return nil, err
	}
	sess.active.Store(true)

	sink := &countingSink{sink: c.bus, metrics: c.metrics}
	retry := pipeline.RetryPolicy{
		MaxAttempts: c.cfg.Retry.MaxAttempts,
		BaseDelay:   c.cfg.Retry.BaseDelay,
		MaxDelay:    c.cfg.Retry.MaxDelay,
	}
	sess.fanout = pipeline.NewFanout(pipeline.FanoutConfig{
		Backend:     c.currentAnalyzer,
		SessionID:   sess.ID,
		MaxInFlight: c.cfg.Analyze.MaxInFlight,
		QueueSize:   c.cfg.Analyze.QueueSize,
		Timeout:     c.cfg.Analyze.Timeout,
		Retry:       retry,
		Sink:        sink,
		Metrics:     c.metrics,
	})
	loop := pipeline.NewLoop(pipeline.LoopConfig{
		SessionID:    sess.ID,
		Dir:          dir,
		Start:        sess.StartTime,
		Active:       &sess.active,
		PollInterval: c.cfg.Discovery.PollInterval,
		Processed:    sess.processed,
		Sink:         sink,
		Metrics:      c.metrics,
		Dispatcher: &pipeline.Dispatcher{
			Backend:   c.currentTranscriber,
			Language:  c.cfg.Transcribe.Language,
			SessionID: sess.ID,
			Retry:     retry,
			Sink:      sink,
			Fanout:    sess.fanout,
			Metrics:   c.metrics,
		},
	})

	go func() {
		defer close(sess.loopDone)
		loop.Run(ctx)
	}()

	c.engine = engine
	c.session = sess
	c.metrics.RecordSessionStarted()
	slog.Info("[SESSION] started", "id", sess.ID, "dir", dir)
	return sess, nil
}

// StopSession stops capture, which finalizes the last chunk, then signals
// the discovery loop. It does not wait for in-flight work; use
// Session.Wait for that. Shutdown errors are logged and returned, but the
// session is stopped regardless.
func (c *Controller) StopSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || !c.session.Active() {
		return ErrNoSession
	}

	err := c.engine.Stop()
	c.session.active.Store(false)
	c.engine = nil

	if err != nil {
		slog.Warn("[SESSION] stopped with errors", "id", c.session.ID, "error", err)
	} else {
		slog.Info("[SESSION] stopped", "id", c.session.ID)
	}
	return err
}

// Session returns the current or most recent session, or nil.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ListDevices lists input devices if the driver can enumerate them.
func (c *Controller) ListDevices() ([]audio.DeviceInfo, error) {
	lister, ok := c.driver.(DeviceLister)
	if !ok {
		return nil, fmt.Errorf("realtime: audio driver cannot list devices")
	}
	return lister.Devices()
}

// OutputDir returns the directory chunks are recorded to.
func (c *Controller) OutputDir() string {
	return c.cfg.Audio.OutputDir
}

// Transcribe runs the transcription backend on a single file.
func (c *Controller) Transcribe(ctx context.Context, path string) (*transcribe.Result, error) {
	t := c.currentTranscriber()
	if t == nil {
		return nil, fmt.Errorf("%w: transcription", ErrNotInitialized)
	}
	return t.Transcribe(ctx, path, c.cfg.Transcribe.Language)
}

// Analyze runs the analysis backend on text.
func (c *Controller) Analyze(ctx context.Context, text string) (*analyze.Result, error) {
	a := c.currentAnalyzer()
	if a == nil {
		return nil, fmt.Errorf("%w: analysis", ErrNotInitialized)
	}
	return a.Analyze(ctx, text)
}

// Close stops any active session, waits for its work until ctx is done,
// and releases the backends and the event bus. Work still running when ctx
// ends is abandoned and its results are not published. Calls after the
// first return the first call's result.
func (c *Controller) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close(ctx)
	})
	return c.closeErr
}

func (c *Controller) close(ctx context.Context) error {
	var errs []error
	if err := c.StopSession(); err != nil && !errors.Is(err, ErrNoSession) {
		errs = append(errs, err)
	}
	if s := c.Session(); s != nil {
		if err := s.WaitContext(ctx); err != nil {
			slog.Warn("[SESSION] gave up waiting for in-flight work", "id", s.ID, "error", err)
		}
	}
	c.bus.Close()

	c.backendMu.Lock()
	t := c.transcriber
	c.transcriber = nil
	c.analyzer = nil
	c.backendMu.Unlock()
	if t != nil {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("realtime: close transcriber: %w", err))
		}
	}
	return errors.Join(errs...)
}

// countingSink counts events on their way to the bus.
type countingSink struct {
	sink    events.Sink
	metrics *metrics.Metrics
}

func (s *countingSink) Emit(ev events.Event) {
	s.metrics.RecordEvent(string(ev.Kind))
	s.sink.Emit(ev)
}
