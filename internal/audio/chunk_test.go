package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// decodeChunk reads a finalized chunk and returns its PCM samples.
func decodeChunk(t *testing.T, path string) (samples []int, sampleRate, channels int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open chunk: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatalf("%s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	return buf.Data, int(dec.SampleRate), int(dec.NumChans)
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, math.MaxInt16},
		{-1, -math.MaxInt16},
		{0.5, 16384},
		{-0.5, -16384},
		{1.5, math.MaxInt16},
		{-7, -math.MaxInt16},
		{float32(math.NaN()), 0},
		{float32(math.Inf(1)), math.MaxInt16},
	}

	for _, tt := range tests {
		if got := FloatToPCM16(tt.in); got != tt.want {
			t.Errorf("FloatToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestChunkWriterWriteWithoutSink(t *testing.T) {
	w := NewChunkWriter(t.TempDir(), Format{SampleRate: 16000, Channels: 1})
	if err := w.Write([]float32{0.1}); !errors.Is(err, ErrNoSink) {
		t.Errorf("Write() without Rotate error = %v, want ErrNoSink", err)
	}
}

func TestChunkWriterFinalizeWithoutSink(t *testing.T) {
	w := NewChunkWriter(t.TempDir(), Format{SampleRate: 16000, Channels: 1})
	chunk, err := w.Finalize()
	if err != nil || chunk != nil {
		t.Errorf("Finalize() with no open chunk = (%v, %v), want (nil, nil)", chunk, err)
	}
}

func TestChunkWriterHidesUnfinishedChunk(t *testing.T) {
	dir := t.TempDir()
	start := time.UnixMilli(1_700_000_000_000)
	w := NewChunkWriter(dir, Format{SampleRate: 16000, Channels: 1})
	w.now = fixedClock(start)

	if _, err := w.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if err := w.Write(make([]float32, 1600)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	for _, name := range listNames(t, dir) {
		if strings.HasSuffix(name, ChunkExt) {
			t.Errorf("open chunk visible as %q before Finalize", name)
		}
	}

	chunk, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if chunk == nil {
		t.Fatal("Finalize() returned nil chunk")
	}
	if want := filepath.Join(dir, ChunkName(start.UnixMilli())); chunk.Path != want {
		t.Errorf("chunk.Path = %q, want %q", chunk.Path, want)
	}
	if !chunk.Created.Equal(start) {
		t.Errorf("chunk.Created = %v, want %v", chunk.Created, start)
	}
	if chunk.Samples != 1600 {
		t.Errorf("chunk.Samples = %d, want 1600", chunk.Samples)
	}

	names := listNames(t, dir)
	if len(names) != 1 || names[0] != ChunkName(start.UnixMilli()) {
		t.Errorf("dir contents after Finalize = %v, want only the final chunk", names)
	}
}

func TestChunkWriterWritesDecodableWAV(t *testing.T) {
	dir := t.TempDir()
	w := NewChunkWriter(dir, Format{SampleRate: 48000, Channels: 2})

	if _, err := w.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	in := []float32{0, 0, 1, -1, 0.5, -0.5, 2, -2}
	if err := w.Write(in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	chunk, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	samples, rate, channels := decodeChunk(t, chunk.Path)
	if rate != 48000 || channels != 2 {
		t.Errorf("decoded format = %dHz/%dch, want 48000Hz/2ch", rate, channels)
	}
	want := []int{0, 0, 32767, -32767, 16384, -16384, 32767, -32767}
	if len(samples) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestChunkWriterRotateResetsCounterAndNamesIncrease(t *testing.T) {
	dir := t.TempDir()
	w := NewChunkWriter(dir, Format{SampleRate: 16000, Channels: 1})
	w.now = fixedClock(time.UnixMilli(5000))

	if _, err := w.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if err := w.Write(make([]float32, 10)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	first, err := w.Rotate()
	if err != nil {
		t.Fatalf("second Rotate() error = %v", err)
	}
	if first == nil || first.Samples != 10 {
		t.Fatalf("Rotate() returned %+v, want finalized chunk with 10 samples", first)
	}
	if w.Samples() != 0 {
		t.Errorf("Samples() after Rotate = %d, want 0", w.Samples())
	}
	if err := w.Write(make([]float32, 5)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	second, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if filepath.Base(first.Path) != ChunkName(5000) {
		t.Errorf("first chunk = %s, want %s", filepath.Base(first.Path), ChunkName(5000))
	}
	if filepath.Base(second.Path) != ChunkName(5001) {
		t.Errorf("second chunk = %s, want %s (clock did not advance)", filepath.Base(second.Path), ChunkName(5001))
	}
}

func TestChunkWriterDropsEmptyChunk(t *testing.T) {
	dir := t.TempDir()
	w := NewChunkWriter(dir, Format{SampleRate: 16000, Channels: 1})

	if _, err := w.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	chunk, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if chunk != nil {
		t.Errorf("Finalize() of empty chunk = %+v, want nil", chunk)
	}
	if names := listNames(t, dir); len(names) != 0 {
		t.Errorf("dir contents = %v, want empty", names)
	}
}

func TestChunkWriterOpenFailureLeavesNoSink(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewChunkWriter(filepath.Join(blocker, "chunks"), Format{SampleRate: 16000, Channels: 1})
	if _, err := w.Rotate(); err == nil {
		t.Fatal("Rotate() into a file path should fail")
	}
	if w.Open() {
		t.Error("writer should have no sink after failed Rotate")
	}
	if err := w.Write([]float32{0.2}); !errors.Is(err, ErrNoSink) {
		t.Errorf("Write() after failed Rotate error = %v, want ErrNoSink", err)
	}

	// The next successful rotation restores output.
	w.dir = tmp
	if _, err := w.Rotate(); err != nil {
		t.Fatalf("Rotate() into valid dir error = %v", err)
	}
	if err := w.Write([]float32{0.2}); err != nil {
		t.Errorf("Write() after recovery error = %v", err)
	}
	if _, err := w.Finalize(); err != nil {
		t.Errorf("Finalize() error = %v", err)
	}
}

func TestParseChunkName(t *testing.T) {
	tests := []struct {
		name   string
		wantMS int64
		wantOK bool
	}{
		{"chunk_1700000000123.wav", 1700000000123, true},
		{"/tmp/x/chunk_42.wav", 42, true},
		{"chunk_42.wav.part", 0, false},
		{"chunk_abc.wav", 0, false},
		{"recording.wav", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseChunkName(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("ParseChunkName(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			}
			if ok && got.UnixMilli() != tt.wantMS {
				t.Errorf("ParseChunkName(%q) = %d, want %d", tt.name, got.UnixMilli(), tt.wantMS)
			}
		})
	}
}

func TestCleanChunks(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chunk_1.wav", "chunk_2.wav.part", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := CleanChunks(dir)
	if err != nil {
		t.Fatalf("CleanChunks() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CleanChunks() removed %d, want 2", n)
	}
	if names := listNames(t, dir); len(names) != 1 || names[0] != "notes.txt" {
		t.Errorf("remaining files = %v, want [notes.txt]", names)
	}

	if n, err := CleanChunks(filepath.Join(dir, "missing")); err != nil || n != 0 {
		t.Errorf("CleanChunks(missing) = (%d, %v), want (0, nil)", n, err)
	}
}
