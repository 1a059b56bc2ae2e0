// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     capture
// Description: Audio capture using PortAudio
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package capture

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/msto63/speechrec/pkg/audio/pcm"
	"github.com/msto63/speechrec/pkg/core/logging"
)

// errorBackoff is the pause after a failed read before the next attempt
const errorBackoff = 100 * time.Millisecond

// PortAudio captures interleaved 16-bit audio from an input device
type PortAudio struct {
	runner
	cfg    Config
	logger *logging.Logger
	stream *portaudio.Stream
}

// NewPortAudio creates a new PortAudio source
func NewPortAudio(cfg Config, logger *logging.Logger) *PortAudio {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PortAudio{
		cfg:    cfg,
		logger: logger.Named("portaudio"),
	}
}

// Start opens the configured device and begins capturing
func (c *PortAudio) Start(ctx context.Context, h Handler) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	ctx, done, err := c.begin(ctx)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	// Buffer for one interleaved read
	buffer := make([]int16, c.cfg.FramesPerBuffer*c.cfg.Channels)

	stream, err := c.openStream(buffer)
	if err != nil {
		c.abort()
		portaudio.Terminate()
		return err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		c.abort()
		portaudio.Terminate()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	c.stream = stream

	p := newPipeline(ctx, c.cfg.QueueLength(), h, c.logger, false)
	go c.captureLoop(ctx, stream, buffer, p, done)

	c.logger.Info("capture started",
		"device", c.cfg.DeviceID,
		"sample_rate", c.cfg.SampleRate,
		"channels", c.cfg.Channels,
		"frames_per_buffer", c.cfg.FramesPerBuffer,
		"queue", c.cfg.QueueLength(),
	)
	return nil
}

// openStream opens either the default input or the selected device
func (c *PortAudio) openStream(buffer []int16) (*portaudio.Stream, error) {
	device, err := findDevice(c.cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	var stream *portaudio.Stream
	if device == nil {
		stream, err = portaudio.OpenDefaultStream(
			c.cfg.Channels, // input channels
			0,              // output channels (none)
			float64(c.cfg.SampleRate),
			c.cfg.FramesPerBuffer,
			buffer,
		)
	} else {
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   device,
				Channels: c.cfg.Channels,
				Latency:  device.DefaultLowInputLatency,
			},
			SampleRate:      float64(c.cfg.SampleRate),
			FramesPerBuffer: c.cfg.FramesPerBuffer,
		}
		stream, err = portaudio.OpenStream(params, buffer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	return stream, nil
}

// captureLoop continuously reads audio from the stream
func (c *PortAudio) captureLoop(ctx context.Context, stream *portaudio.Stream, buffer []int16, p *pipeline, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.fail(ctx, fmt.Errorf("audio read failed: %w", err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}

		if !p.push(ctx, pcm.Bytes(buffer)) {
			return
		}
	}
}

// Stop stops audio capture and releases the device
func (c *PortAudio) Stop() error {
	if !c.halt(true) {
		return nil
	}
	defer portaudio.Terminate()

	stream := c.stream
	c.stream = nil
	if stream == nil {
		return nil
	}

	if err := stream.Stop(); err != nil {
		c.logger.Warn("failed to stop audio stream", "error", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}

	c.logger.Info("capture stopped")
	return nil
}

// Config returns the capture configuration
func (c *PortAudio) Config() Config {
	return c.cfg
}

// Device describes an audio device
type Device struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefault         bool    `json:"is_default"`
}

// Devices returns all devices known to PortAudio, in PortAudio index order
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	defaultInput, _ := portaudio.DefaultInputDevice()
	var defaultInputName string
	if defaultInput != nil {
		defaultInputName = defaultInput.Name
	}

	result := make([]Device, 0, len(devices))
	for i, dev := range devices {
		d := Device{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultInputName,
		}
		if dev.HostApi != nil {
			d.HostAPI = dev.HostApi.Name
		}
		result = append(result, d)
	}

	return result, nil
}

// findDevice resolves a device selector. A nil device means the default input.
// PortAudio must be initialized.
func findDevice(selector string) (*portaudio.DeviceInfo, error) {
	selector = strings.TrimSpace(selector)
	if isDefaultSelector(selector) {
		return nil, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	if idx, convErr := strconv.Atoi(selector); convErr == nil {
		if idx < 0 || idx >= len(devices) || devices[idx].MaxInputChannels == 0 {
			return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, idx)
		}
		return devices[idx], nil
	}

	for _, dev := range devices {
		if dev.Name == selector && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, selector)
}

// isDefaultSelector reports whether the selector means "default input"
func isDefaultSelector(selector string) bool {
	switch strings.ToLower(selector) {
	case "", AnyDevice, "default", "-1":
		return true
	}
	return false
}
