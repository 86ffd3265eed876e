//go:build !whisper

package transcribe

import (
	"context"
	"fmt"
)

// NewWhisperTranscriber reports that local whisper support was not compiled
// in. Build with -tags whisper to enable it.
func NewWhisperTranscriber(modelPath string) (*whisperStub, error) {
	return nil, fmt.Errorf("transcribe: whisper backend not built (rebuild with -tags whisper; model: %s)", modelPath)
}

// whisperStub is a placeholder type satisfying the Transcriber interface.
type whisperStub struct{}

func (w *whisperStub) Transcribe(ctx context.Context, path, language string) (*Result, error) {
	return nil, fmt.Errorf("transcribe: whisper backend not built")
}

func (w *whisperStub) Close() error {
	return nil
}
