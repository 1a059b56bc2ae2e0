// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     recorder
// Description: Recorder configuration and validation
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package recorder

import (
	"errors"
	"fmt"

	"github.com/msto63/speechrec/pkg/audio/capture"
	"github.com/msto63/speechrec/pkg/audio/vad"
)

// MinSpeechVolume is the volume a frame must exceed to count as speech,
// regardless of the classifier verdict
const MinSpeechVolume = 250

var (
	// ErrInvalidConfig is wrapped by every option validation failure
	ErrInvalidConfig = errors.New("recorder: invalid configuration")

	// ErrAlreadyStarted is returned by Start on a running recorder
	ErrAlreadyStarted = errors.New("recorder: already started")

	// ErrFrame wraps extraction and classifier failures for a single frame
	ErrFrame = errors.New("recorder: frame processing failed")
)

// Trigger fires when the silence run after speech onset reaches Threshold frames
type Trigger struct {
	ID        string `json:"id" toml:"id" yaml:"id"`
	Threshold int    `json:"threshold" toml:"threshold" yaml:"threshold"`
}

// Options configures a Recorder. They are fixed once the recorder is created.
type Options struct {
	SampleRate        int
	FramesPerBuffer   int
	ChannelNumber     int // interleaved channels delivered by the source
	ChannelID         int // channel analysed, zero based
	SpeakingThreshold int // consecutive speech frames to enter speaking
	SilenceThreshold  int // consecutive silent frames to leave speaking
	LeadingPadding    int // silent frames kept as pre-roll
	HighWaterMark     int // capture queue limit in bytes
	Triggers          []Trigger

	// Level is the classifier aggressiveness (0-3)
	Level int

	// OnError receives capture and frame errors. May be nil.
	OnError func(err error)
}

// DefaultOptions returns the default recorder options
func DefaultOptions() Options {
	return Options{
		SampleRate:        16000,
		FramesPerBuffer:   320,
		ChannelNumber:     1,
		ChannelID:         0,
		SpeakingThreshold: 5,
		SilenceThreshold:  30,
		LeadingPadding:    30,
		HighWaterMark:     64000,
		Level:             3,
	}
}

// Validate checks the options for values the segmenter cannot work with
func (o Options) Validate() error {
	if err := vad.ValidateSampleRate(o.SampleRate); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch {
	case o.FramesPerBuffer <= 0:
		return fmt.Errorf("%w: frames per buffer must be positive, got %d", ErrInvalidConfig, o.FramesPerBuffer)
	case o.ChannelNumber < 1:
		return fmt.Errorf("%w: channel number must be at least 1, got %d", ErrInvalidConfig, o.ChannelNumber)
	case o.ChannelID < 0 || o.ChannelID >= o.ChannelNumber:
		return fmt.Errorf("%w: channel id %d out of range for %d channels", ErrInvalidConfig, o.ChannelID, o.ChannelNumber)
	case o.SpeakingThreshold <= 0:
		return fmt.Errorf("%w: speaking threshold must be positive, got %d", ErrInvalidConfig, o.SpeakingThreshold)
	case o.SilenceThreshold <= 0:
		return fmt.Errorf("%w: silence threshold must be positive, got %d", ErrInvalidConfig, o.SilenceThreshold)
	case o.LeadingPadding < 0:
		return fmt.Errorf("%w: leading padding must not be negative, got %d", ErrInvalidConfig, o.LeadingPadding)
	case o.HighWaterMark <= 0:
		return fmt.Errorf("%w: high water mark must be positive, got %d", ErrInvalidConfig, o.HighWaterMark)
	case o.Level < 0 || o.Level > 3:
		return fmt.Errorf("%w: level must be between 0 and 3, got %d", ErrInvalidConfig, o.Level)
	}

	for i, t := range o.Triggers {
		if t.ID == "" {
			return fmt.Errorf("%w: trigger %d has no id", ErrInvalidConfig, i)
		}
		if t.Threshold <= 0 {
			return fmt.Errorf("%w: trigger %q threshold must be positive, got %d", ErrInvalidConfig, t.ID, t.Threshold)
		}
	}
	return nil
}

// CaptureConfig returns the source configuration matching these options
func (o Options) CaptureConfig(deviceID string) capture.Config {
	if deviceID == "" {
		deviceID = capture.AnyDevice
	}
	return capture.Config{
		SampleRate:      o.SampleRate,
		FramesPerBuffer: o.FramesPerBuffer,
		Channels:        o.ChannelNumber,
		HighWaterMark:   o.HighWaterMark,
		DeviceID:        deviceID,
	}
}

// FrameDurationMs returns the length of one captured buffer in milliseconds
func (o Options) FrameDurationMs() float64 {
	if o.SampleRate <= 0 {
		return 0
	}
	return float64(o.FramesPerBuffer) * 1000 / float64(o.SampleRate)
}
