package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// ChunkExt is the extension of finalized chunk files.
	ChunkExt = ".wav"
	// partExt marks a chunk that is still being written.
	partExt = ".part"

	chunkPrefix = "chunk_"
	bitDepth    = 16
	wavPCM      = 1
)

// ErrNoSink is returned by Write when no chunk file is open.
var ErrNoSink = errors.New("audio: no open chunk")

// Format describes the sample layout of captured audio.
type Format struct {
	SampleRate int
	Channels   int
}

// Chunk is one finalized audio segment on disk.
type Chunk struct {
	Path    string
	Created time.Time
	Samples int
}

// ChunkName returns the file name for a chunk created at the given
// millisecond token.
func ChunkName(token int64) string {
	return chunkPrefix + strconv.FormatInt(token, 10) + ChunkExt
}

// ParseChunkName extracts the creation time encoded in a chunk file name.
// ok is false for names ChunkWriter did not produce.
func ParseChunkName(name string) (created time.Time, ok bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, chunkPrefix) || !strings.HasSuffix(base, ChunkExt) {
		return time.Time{}, false
	}
	token, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(base, chunkPrefix), ChunkExt), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(token), true
}

// ChunkWriter writes 16-bit PCM WAV chunks into a directory. A chunk is
// written under a ".part" name and renamed to its final ".wav" name only
// after the encoder and file are closed, so directory listings never show
// an unfinished chunk.
//
// ChunkWriter is not safe for concurrent use; CaptureEngine serializes it.
type ChunkWriter struct {
	dir    string
	format Format
	now    func() time.Time

	file      *os.File
	enc       *wav.Encoder
	buf       *goaudio.IntBuffer
	path      string
	created   time.Time
	samples   int
	lastToken int64
}

// NewChunkWriter creates a writer for the given directory and sample format.
// No file is opened until the first Rotate.
func NewChunkWriter(dir string, format Format) *ChunkWriter {
	return &ChunkWriter{
		dir:    dir,
		format: format,
		now:    time.Now,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: format.Channels,
				SampleRate:  format.SampleRate,
			},
			SourceBitDepth: bitDepth,
		},
	}
}

// Open reports whether a chunk file is currently open.
func (w *ChunkWriter) Open() bool {
	return w.file != nil
}

// Samples returns the number of samples written to the open chunk.
func (w *ChunkWriter) Samples() int {
	return w.samples
}

// Write converts samples to 16-bit PCM and appends them to the open chunk.
func (w *ChunkWriter) Write(samples []float32) error {
	if w.enc == nil {
		return ErrNoSink
	}
	if len(samples) == 0 {
		return nil
	}

	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = int(FloatToPCM16(s))
	}

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("audio: write chunk %s: %w", filepath.Base(w.path), err)
	}
	w.samples += len(samples)
	return nil
}

// Rotate finalizes the open chunk (if any) and opens a new one. When the
// new file cannot be created the writer is left without a sink.
func (w *ChunkWriter) Rotate() (*Chunk, error) {
	done, ferr := w.Finalize()
	if ferr != nil {
		slog.Warn("[CAPTURE] finalize during rotate failed", "error", ferr)
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return done, fmt.Errorf("audio: create chunk dir: %w", err)
	}

	now := w.now()
	token := now.UnixMilli()
	if token <= w.lastToken {
		token = w.lastToken + 1
	}

	path := filepath.Join(w.dir, ChunkName(token))
	f, err := os.Create(path + partExt)
	if err != nil {
		return done, fmt.Errorf("audio: create chunk: %w", err)
	}

	w.lastToken = token
	w.file = f
	w.enc = wav.NewEncoder(f, w.format.SampleRate, bitDepth, w.format.Channels, wavPCM)
	w.path = path
	w.created = time.UnixMilli(token)
	w.samples = 0
	return done, nil
}

// Finalize closes the open chunk and publishes it under its final name.
// It is a no-op when no chunk is open. A chunk without samples is removed
// instead of published.
func (w *ChunkWriter) Finalize() (*Chunk, error) {
	if w.file == nil {
		return nil, nil
	}

	f, enc, path := w.file, w.enc, w.path
	chunk := &Chunk{Path: path, Created: w.created, Samples: w.samples}
	w.file, w.enc, w.path = nil, nil, ""
	w.samples = 0

	var errs []error
	if err := enc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close encoder: %w", err))
	}
	if err := f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close file: %w", err))
	}

	if chunk.Samples == 0 {
		os.Remove(path + partExt)
		return nil, errors.Join(errs...)
	}

	if len(errs) > 0 {
		os.Remove(path + partExt)
		return nil, fmt.Errorf("audio: finalize %s: %w", filepath.Base(path), errors.Join(errs...))
	}

	if err := os.Rename(path+partExt, path); err != nil {
		return nil, fmt.Errorf("audio: publish %s: %w", filepath.Base(path), err)
	}
	return chunk, nil
}

// FloatToPCM16 converts a float sample in [-1, 1] to a signed 16-bit value.
// Out-of-range input is clamped and NaN maps to silence.
func FloatToPCM16(s float32) int16 {
	if s != s {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(float64(s) * math.MaxInt16))
}

// CleanChunks removes finalized and partial chunk files from dir. It
// returns the number of files removed.
func CleanChunks(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("audio: list %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ChunkExt) || strings.HasSuffix(name, ChunkExt+partExt)) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			slog.Warn("[CAPTURE] failed to remove stale chunk", "file", name, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
