//go:build whisper

package transcribe

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperSampleRate is the only rate whisper.cpp accepts.
const whisperSampleRate = 16000

// WhisperTranscriber runs whisper.cpp locally on 16kHz mono chunks.
type WhisperTranscriber struct {
	// whisper.cpp is not safe for concurrent inference on one model.
	mu    sync.Mutex
	model whisper.Model
}

var _ Transcriber = (*WhisperTranscriber)(nil)

// NewWhisperTranscriber loads a whisper model from the given path.
// The caller must call Close() when done.
func NewWhisperTranscriber(modelPath string) (*WhisperTranscriber, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", modelPath, err)
	}
	return &WhisperTranscriber{model: model}, nil
}

// Close releases the whisper model resources.
func (t *WhisperTranscriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe decodes the WAV chunk at path and runs inference on it.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, path, language string) (*Result, error) {
	samples, err := loadMono16k(path)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("transcribe: create context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			return nil, fmt.Errorf("transcribe: set language %q: %w", language, err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("transcribe: process: %w", err)
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("transcribe: next segment: %w", err)
		}
		segments = append(segments, seg.Text)
	}

	return &Result{
		Text:     strings.TrimSpace(strings.Join(segments, " ")),
		Language: wctx.Language(),
		Duration: float64(len(samples)) / whisperSampleRate,
	}, nil
}

// loadMono16k decodes a 16-bit 16kHz mono WAV file into float32 samples
// normalized to [-1.0, 1.0].
func loadMono16k(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcribe: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("transcribe: %s is not a valid WAV file", path)
	}
	if dec.SampleRate != whisperSampleRate || dec.NumChans != 1 {
		return nil, fmt.Errorf("transcribe: whisper needs 16kHz mono, %s is %dHz/%dch", path, dec.SampleRate, dec.NumChans)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("transcribe: decode %s: %w", path, err)
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}
