// Package transcribe provides speech-to-text backends for chunk files.
//
// Supported backends:
//   - groq: Groq's OpenAI-compatible transcription API (default)
//   - command: an external program printing a JSON result
//   - whisper: whisper.cpp via Go bindings (build tag "whisper")
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaz8081/gostt-live/internal/config"
)

// ErrEmptyAudio is returned for chunk files too small to hold speech.
var ErrEmptyAudio = errors.New("transcribe: audio file too small")

// minAudioBytes rejects header-only and near-empty chunk files.
const minAudioBytes = 1000

// Result is the outcome of a successful transcription call.
type Result struct {
	Text     string
	Language string
	Duration float64 // seconds, 0 if the backend does not report it
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	// Transcribe transcribes the audio file at path. language is an
	// ISO-639-1 hint and may be empty.
	Transcribe(ctx context.Context, path, language string) (*Result, error)
	// Close releases backend resources.
	Close() error
}

// New creates a Transcriber based on the config backend setting.
func New(cfg *config.TranscribeConfig) (Transcriber, error) {
	switch cfg.Backend {
	case "groq", "":
		return wrap(NewGroq(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout))
	case "command":
		return wrap(NewCommand(cfg.Command, cfg.Timeout))
	case "whisper":
		return wrap(NewWhisperTranscriber(cfg.ModelPath))
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: groq, command, whisper)", cfg.Backend)
	}
}

// wrap keeps a failed constructor's typed nil out of the interface.
func wrap[T Transcriber](t T, err error) (Transcriber, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}
