package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chaz8081/gostt-live/internal/audio"
	"github.com/chaz8081/gostt-live/internal/events"
	"github.com/chaz8081/gostt-live/internal/metrics"
)

// DefaultPollInterval is how often the session directory is scanned.
const DefaultPollInterval = 100 * time.Millisecond

// LoopConfig configures a discovery Loop.
type LoopConfig struct {
	SessionID    string
	Dir          string
	Start        time.Time    // chunks created before this are ignored
	Active       *atomic.Bool // the loop runs while this is set
	PollInterval time.Duration
	Processed    *ProcessedSet
	Dispatcher   *Dispatcher
	Sink         events.Sink
	Metrics      *metrics.Metrics
}

// Loop polls a session directory for finalized chunks and dispatches each
// new one exactly once, oldest first.
type Loop struct {
	cfg LoopConfig
}

// NewLoop creates a discovery loop. A nil Processed set is replaced by an
// empty one.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Processed == nil {
		cfg.Processed = NewProcessedSet()
	}
	if cfg.Active == nil {
		cfg.Active = new(atomic.Bool)
	}
	return &Loop{cfg: cfg}
}

// Run polls until the active flag is cleared or ctx is done. After the
// flag is cleared it scans once more so a chunk finalized by the stop is
// still processed.
func (l *Loop) Run(ctx context.Context) {
	slog.Info("[DISCOVERY] started", "dir", l.cfg.Dir, "interval", l.cfg.PollInterval)
	defer func() {
		slog.Info("[DISCOVERY] stopped", "processed", l.cfg.Processed.Len())
	}()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if !l.cfg.Active.Load() {
			l.Scan(ctx)
			return
		}
		l.Scan(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Scan lists the directory once and dispatches every chunk not seen
// before. It returns the number of chunks dispatched.
func (l *Loop) Scan(ctx context.Context) int {
	found, err := l.list()
	if err != nil {
		slog.Warn("[DISCOVERY] listing failed", "dir", l.cfg.Dir, "error", err)
		return 0
	}

	n := 0
	for _, c := range found {
		if ctx.Err() != nil {
			break
		}
		if !l.cfg.Processed.Add(c.path) {
			continue
		}
		n++
		l.cfg.Metrics.RecordChunkDiscovered()
		slog.Debug("[DISCOVERY] new chunk", "chunk", c.path)

		if l.cfg.Sink != nil {
			l.cfg.Sink.Emit(events.Event{
				Kind:      events.KindChunk,
				SessionID: l.cfg.SessionID,
				Chunk:     c.path,
			})
		}
		if l.cfg.Dispatcher != nil {
			l.cfg.Dispatcher.Dispatch(ctx, c.path)
		}
	}
	return n
}

type discovered struct {
	path    string
	created time.Time
}

// list returns the session's chunk files created at or after Start, sorted
// by creation time. Creation time comes from the chunk name and falls back
// to the modification time for foreign files.
func (l *Loop) list() ([]discovered, error) {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	// Chunk tokens have millisecond resolution.
	start := l.cfg.Start.Truncate(time.Millisecond)

	var found []discovered
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), audio.ChunkExt) {
			continue
		}

		created, ok := audio.ParseChunkName(name)
		if !ok {
			info, err := e.Info()
			if err != nil {
				continue
			}
			created = info.ModTime()
		}
		if created.Before(start) {
			continue
		}
		found = append(found, discovered{path: filepath.Join(l.cfg.Dir, name), created: created})
	}

	slices.SortFunc(found, func(a, b discovered) int {
		if c := a.created.Compare(b.created); c != 0 {
			return c
		}
		return strings.Compare(a.path, b.path)
	})
	return found, nil
}
