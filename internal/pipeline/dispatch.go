package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chaz8081/gostt-live/internal/events"
	"github.com/chaz8081/gostt-live/internal/metrics"
	"github.com/chaz8081/gostt-live/internal/transcribe"
)

// DefaultSpeaker tags transcripts captured from the local microphone.
const DefaultSpeaker = "user"

// Transcriber is the part of transcribe.Transcriber the dispatcher needs.
type Transcriber interface {
	Transcribe(ctx context.Context, path, language string) (*transcribe.Result, error)
}

// ErrNoTranscriber is reported when no transcription backend is available.
var ErrNoTranscriber = errors.New("pipeline: transcription backend not initialized")

// TranscriptOutcome is the classified result of transcribing one chunk.
type TranscriptOutcome struct {
	Success  bool
	Text     string
	Err      error
	Language string
	Duration float64
}

// Accepted reports whether the outcome carries text worth publishing.
func (o TranscriptOutcome) Accepted() bool {
	return o.Success && strings.TrimSpace(o.Text) != ""
}

// Dispatcher transcribes chunks one at a time and forwards accepted
// transcripts to the event sink and the analysis fan-out.
type Dispatcher struct {
	// Backend returns the current transcriber. It is called once per chunk
	// so a backend replaced mid-session takes effect on the next chunk.
	Backend   func() Transcriber
	Language  string
	Speaker   string
	SessionID string
	Retry     RetryPolicy
	Sink      events.Sink
	Fanout    *Fanout
	Metrics   *metrics.Metrics

	now func() time.Time
}

// Dispatch transcribes the chunk at path and returns the outcome. Failures
// are logged and never propagate: the caller moves on to the next chunk.
func (d *Dispatcher) Dispatch(ctx context.Context, path string) TranscriptOutcome {
	// The transcript is stamped with the time its chunk was picked up.
	received := d.clock()
	out := d.transcribe(ctx, path)

	switch {
	case out.Err != nil:
		if errors.Is(out.Err, transcribe.ErrEmptyAudio) {
			slog.Debug("[TRANSCRIBE] skipping near-empty chunk", "chunk", path)
		} else {
			slog.Warn("[TRANSCRIBE] chunk failed, skipping", "chunk", path, "error", out.Err)
		}
		return out
	case !out.Accepted():
		slog.Debug("[TRANSCRIBE] empty transcript, skipping", "chunk", path)
		return out
	}

	slog.Info("[TRANSCRIBE] transcript ready", "chunk", path, "chars", len(out.Text))
	if d.Sink != nil {
		d.Sink.Emit(events.Event{
			Kind:      events.KindTranscription,
			SessionID: d.SessionID,
			Chunk:     path,
			Transcription: &events.Transcription{
				Text:      out.Text,
				Timestamp: received.Unix(),
				Speaker:   d.speaker(),
				Language:  out.Language,
			},
		})
	}
	if d.Fanout != nil {
		d.Fanout.Submit(ctx, path, out.Text)
	}
	return out
}

func (d *Dispatcher) transcribe(ctx context.Context, path string) TranscriptOutcome {
	var backend Transcriber
	if d.Backend != nil {
		backend = d.Backend()
	}
	if backend == nil {
		return TranscriptOutcome{Err: ErrNoTranscriber}
	}

	start := time.Now()
	var res *transcribe.Result
	err := d.Retry.Do(ctx, func(ctx context.Context) error {
		r, err := backend.Transcribe(ctx, path, d.Language)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("pipeline: transcriber returned no result")
		}
		res = r
		return nil
	}, func(attempt int, err error) {
		d.Metrics.RecordTranscriptionRetry()
		slog.Info("[TRANSCRIBE] retrying chunk", "chunk", path, "attempt", attempt+1, "error", err)
	})

	if err != nil {
		d.Metrics.RecordTranscription("error", time.Since(start))
		return TranscriptOutcome{Err: err}
	}

	out := TranscriptOutcome{
		Success:  true,
		Text:     strings.TrimSpace(res.Text),
		Language: res.Language,
		Duration: res.Duration,
	}
	result := "ok"
	if !out.Accepted() {
		result = "empty"
	}
	d.Metrics.RecordTranscription(result, time.Since(start))
	return out
}

func (d *Dispatcher) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *Dispatcher) speaker() string {
	if d.Speaker == "" {
		return DefaultSpeaker
	}
	return d.Speaker
}
