package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// MalgoDriver captures audio through miniaudio. Call Close() when done.
type MalgoDriver struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	device *malgo.Device
}

var _ Driver = (*MalgoDriver)(nil)

// NewMalgoDriver initializes the audio context.
func NewMalgoDriver() (*MalgoDriver, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("[CAPTURE] miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &MalgoDriver{ctx: ctx}, nil
}

// Devices lists the available capture devices.
func (d *MalgoDriver) Devices() ([]DeviceInfo, error) {
	infos, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{Name: info.Name(), IsDefault: info.IsDefault != 0})
	}
	return out, nil
}

// Start opens the requested (or default) capture device in float32 format
// and starts it. Zero sample rate or channel count keeps the device's
// native value.
func (d *MalgoDriver) Start(req DeviceRequest, onData func(samples []float32)) (Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return Format{}, fmt.Errorf("capture device already started")
	}

	infos, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return Format{}, fmt.Errorf("listing capture devices: %w", err)
	}
	if len(infos) == 0 {
		return Format{}, ErrNoDevice
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = req.Channels
	deviceCfg.SampleRate = req.SampleRate

	if req.Name != "" {
		found := false
		for i := range infos {
			if infos[i].Name() == req.Name {
				deviceCfg.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return Format{}, fmt.Errorf("input device %q: %w", req.Name, ErrNoDevice)
		}
	}

	var channels uint32
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSample []byte, frameCount uint32) {
			onData(bytesToFloat32(pSample, frameCount*channels))
		},
		Stop: func() {
			slog.Debug("[CAPTURE] device stopped")
		},
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return Format{}, fmt.Errorf("initializing capture device: %w", err)
	}
	channels = device.CaptureChannels()

	if err := device.Start(); err != nil {
		device.Uninit()
		return Format{}, fmt.Errorf("starting capture device: %w", err)
	}
	d.device = device

	return Format{SampleRate: int(device.SampleRate()), Channels: int(channels)}, nil
}

// Stop stops and releases the capture device.
func (d *MalgoDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return nil
	}
	var err error
	if d.device.IsStarted() {
		err = d.device.Stop()
	}
	d.device.Uninit()
	d.device = nil
	if err != nil {
		return fmt.Errorf("stopping capture device: %w", err)
	}
	return nil
}

// Close releases all audio resources.
func (d *MalgoDriver) Close() error {
	if err := d.Stop(); err != nil {
		slog.Warn("[CAPTURE] stop during close", "error", err)
	}
	if err := d.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	d.ctx.Free()
	return nil
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
