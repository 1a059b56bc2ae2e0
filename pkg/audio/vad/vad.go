// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     vad
// Description: Voice activity classifier interface
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package vad

import (
	"fmt"
	"math"

	"github.com/msto63/speechrec/pkg/audio/pcm"
)

// Classifier decides whether a mono s16le frame contains speech
type Classifier interface {
	// Classify returns true if the frame is voiced
	Classify(frame []byte, sampleRate int) (bool, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface
type ClassifierFunc func(frame []byte, sampleRate int) (bool, error)

// Classify calls f(frame, sampleRate)
func (f ClassifierFunc) Classify(frame []byte, sampleRate int) (bool, error) {
	return f(frame, sampleRate)
}

// Config holds classifier configuration
type Config struct {
	// SampleRate is the audio sample rate (8000, 16000, 32000 or 48000 for WebRTC)
	SampleRate int

	// Mode/Aggressiveness (0-3 for WebRTC VAD, higher = more aggressive filtering)
	Mode int
}

// DefaultConfig returns default classifier configuration
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Mode:       3,
	}
}

// ValidSampleRates lists the rates accepted by the WebRTC detector
var ValidSampleRates = []int{8000, 16000, 32000, 48000}

// ValidateSampleRate returns an error if rate is not supported by WebRTC VAD
func ValidateSampleRate(rate int) error {
	for _, r := range ValidSampleRates {
		if rate == r {
			return nil
		}
	}
	return fmt.Errorf("invalid sample rate %d, must be one of %v", rate, ValidSampleRates)
}

// Energy is a pure-Go classifier that reports speech when the normalised RMS
// level of a frame reaches Threshold. It has no state.
type Energy struct {
	// Threshold in [0, 1], relative to full scale
	Threshold float64
}

// NewEnergy creates an energy classifier
func NewEnergy(threshold float64) *Energy {
	return &Energy{Threshold: threshold}
}

// Classify implements Classifier
func (e *Energy) Classify(frame []byte, _ int) (bool, error) {
	if len(frame)%pcm.SampleSize != 0 {
		return false, fmt.Errorf("odd frame length %d", len(frame))
	}
	return rms(pcm.Samples(frame)) >= e.Threshold, nil
}

// rms computes the root-mean-square of 16-bit PCM samples, normalized to [0, 1]
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
