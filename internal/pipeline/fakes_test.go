package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/gostt-live/internal/analyze"
	"github.com/chaz8081/gostt-live/internal/audio"
	"github.com/chaz8081/gostt-live/internal/events"
	"github.com/chaz8081/gostt-live/internal/transcribe"
)

// fakeTranscriber returns canned results keyed by chunk base name.
type fakeTranscriber struct {
	mu      sync.Mutex
	texts   map[string]string
	errs    map[string]error
	failN   int // fail this many calls before succeeding
	calls   []string
	blockCh chan struct{}
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{texts: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path, language string) (*transcribe.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(path))
	block := f.blockCh
	fail := f.failN > 0
	if fail {
		f.failN--
	}
	text, hasText := f.texts[filepath.Base(path)]
	err := f.errs[filepath.Base(path)]
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return nil, errors.New("transient failure")
	}
	if err != nil {
		return nil, err
	}
	if !hasText {
		text = "text of " + filepath.Base(path)
	}
	return &transcribe.Result{Text: text, Language: language}, nil
}

func (f *fakeTranscriber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// transcriberFunc adapts a function to Transcriber.
type transcriberFunc func(ctx context.Context, path, language string) (*transcribe.Result, error)

func (f transcriberFunc) Transcribe(ctx context.Context, path, language string) (*transcribe.Result, error) {
	return f(ctx, path, language)
}

// fakeAnalyzer runs fn for each call.
type fakeAnalyzer struct {
	fn func(ctx context.Context, text string) (*analyze.Result, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) (*analyze.Result, error) {
	return f.fn(ctx, text)
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu  sync.Mutex
	evs []events.Event
}

func (s *recordingSink) Emit(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
}

func (s *recordingSink) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.evs...)
}

func (s *recordingSink) OfKind(k events.Kind) []events.Event {
	var out []events.Event
	for _, ev := range s.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// touchChunk creates an empty chunk file named for created.
func touchChunk(t *testing.T, dir string, created time.Time) string {
	t.Helper()
	path := filepath.Join(dir, audio.ChunkName(created.UnixMilli()))
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("create chunk: %v", err)
	}
	return path
}

func transcriberOf(t Transcriber) func() Transcriber {
	return func() Transcriber { return t }
}

func analyzerOf(a Analyzer) func() Analyzer {
	return func() Analyzer { return a }
}
