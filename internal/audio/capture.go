// Package audio captures microphone audio and writes it to disk as
// fixed-duration WAV chunks.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoDevice is returned when no capture device is available.
var ErrNoDevice = errors.New("audio: no input device available")

// DeviceRequest selects the input device and the format to request from it.
// Zero values ask for the device's native settings.
type DeviceRequest struct {
	Name       string
	SampleRate uint32
	Channels   uint32
}

// Driver is an audio input backend. The data callback is invoked from the
// driver's own capture thread with interleaved float32 samples.
type Driver interface {
	// Start opens the device and begins delivering frames to onData.
	// It returns the negotiated sample format.
	Start(req DeviceRequest, onData func(samples []float32)) (Format, error)
	// Stop halts delivery and releases the device. No onData call is in
	// progress once Stop returns.
	Stop() error
}

// EngineConfig configures a capture Engine.
type EngineConfig struct {
	Device       DeviceRequest
	ChunkSeconds uint32
}

// Engine drives a Driver and feeds its frames into a ChunkWriter, rotating
// to a new chunk every ChunkSeconds of audio.
type Engine struct {
	driver Driver
	cfg    EngineConfig

	// OnChunk, if set, is called for every finalized chunk. It runs on the
	// capture thread while the engine lock is held and must not block.
	OnChunk func(Chunk)

	mu        sync.Mutex
	recording bool
	writer    *ChunkWriter
	format    Format
	threshold int
	sinkless  bool
}

// NewEngine creates a capture engine on top of the given driver.
func NewEngine(driver Driver, cfg EngineConfig) *Engine {
	return &Engine{driver: driver, cfg: cfg}
}

// Start opens the input device and begins writing chunks into dir. Device
// errors are returned synchronously and leave the engine stopped.
func (e *Engine) Start(dir string) error {
	e.mu.Lock()
	if e.recording || e.writer != nil {
		e.mu.Unlock()
		return fmt.Errorf("audio: already recording")
	}
	e.mu.Unlock()

	if e.cfg.ChunkSeconds == 0 {
		return fmt.Errorf("audio: chunk duration must be > 0")
	}

	format, err := e.driver.Start(e.cfg.Device, e.onData)
	if err != nil {
		return fmt.Errorf("audio: start capture: %w", err)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		if serr := e.driver.Stop(); serr != nil {
			slog.Warn("[CAPTURE] stopping driver after bad format", "error", serr)
		}
		return fmt.Errorf("audio: device reported invalid format %dHz/%dch", format.SampleRate, format.Channels)
	}

	e.mu.Lock()
	e.format = format
	e.threshold = format.SampleRate * format.Channels * int(e.cfg.ChunkSeconds)
	e.writer = NewChunkWriter(dir, format)
	e.sinkless = false
	e.recording = true
	e.mu.Unlock()

	slog.Info("[CAPTURE] recording",
		"dir", dir,
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"chunk_samples", e.threshold)
	return nil
}

// Stop clears the recording flag, finalizes the last chunk and releases the
// device. When Stop returns no further chunk files will appear.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.writer == nil {
		e.mu.Unlock()
		return nil
	}
	e.recording = false
	chunk, ferr := e.writer.Finalize()
	e.publish(chunk)
	e.writer = nil
	e.mu.Unlock()

	var errs []error
	if ferr != nil {
		slog.Error("[CAPTURE] finalize last chunk failed", "error", ferr)
		errs = append(errs, ferr)
	}
	if err := e.driver.Stop(); err != nil {
		slog.Error("[CAPTURE] stopping device failed", "error", err)
		errs = append(errs, fmt.Errorf("audio: stop device: %w", err))
	}

	slog.Info("[CAPTURE] stopped")
	return errors.Join(errs...)
}

// IsRecording returns whether the engine is currently capturing audio.
func (e *Engine) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

// Format returns the format negotiated with the device by the last Start.
func (e *Engine) Format() Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// onData runs on the driver's capture thread for every delivered frame
// block. A block that crosses the chunk boundary is split so every chunk
// except the last holds exactly threshold samples.
func (e *Engine) onData(samples []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.recording || e.writer == nil {
		return
	}

	for len(samples) > 0 {
		if !e.writer.Open() || e.writer.Samples() >= e.threshold {
			done, err := e.writer.Rotate()
			e.publish(done)
			if err != nil {
				if !e.sinkless {
					slog.Warn("[CAPTURE] cannot open chunk, dropping audio", "error", err)
				}
				e.sinkless = true
				return
			}
			if e.sinkless {
				slog.Info("[CAPTURE] chunk output recovered")
				e.sinkless = false
			}
		}

		n := min(len(samples), e.threshold-e.writer.Samples())
		if err := e.writer.Write(samples[:n]); err != nil {
			slog.Warn("[CAPTURE] write failed", "error", err)
			return
		}
		samples = samples[n:]
	}
}

// publish reports a finalized chunk (caller must hold mu).
func (e *Engine) publish(c *Chunk) {
	if c == nil {
		return
	}
	slog.Debug("[CAPTURE] chunk finalized", "path", c.Path, "samples", c.Samples)
	if e.OnChunk != nil {
		e.OnChunk(*c)
	}
}
