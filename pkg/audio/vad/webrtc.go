// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     vad
// Description: WebRTC VAD implementation
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package vad

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTC implements voice activity detection using WebRTC's VAD
type WebRTC struct {
	mu         sync.Mutex
	vad        *webrtcvad.VAD
	sampleRate int
	mode       int
}

// NewWebRTC creates a new WebRTC VAD instance
func NewWebRTC(cfg Config) (*WebRTC, error) {
	if err := ValidateSampleRate(cfg.SampleRate); err != nil {
		return nil, err
	}

	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}

	// Set aggressiveness mode (0-3)
	mode := cfg.Mode
	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}

	if err := vad.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}

	return &WebRTC{
		vad:        vad,
		sampleRate: cfg.SampleRate,
		mode:       mode,
	}, nil
}

// Classify implements Classifier. Frames of 10, 20 or 30 ms are passed to the
// detector as-is; any other length is processed in 10 ms sub-frames and is
// voiced if any sub-frame is.
func (w *WebRTC) Classify(frame []byte, sampleRate int) (bool, error) {
	if sampleRate != w.sampleRate {
		return false, fmt.Errorf("sample rate %d does not match detector rate %d", sampleRate, w.sampleRate)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isNativeFrame(len(frame)) {
		active, err := w.vad.Process(w.sampleRate, frame)
		if err != nil {
			return false, fmt.Errorf("VAD processing failed: %w", err)
		}
		return active, nil
	}

	size := w.subFrameBytes()
	for i := 0; i < len(frame); i += size {
		sub := frame[i:min(i+size, len(frame))]
		if len(sub) < size {
			// Pad with zeros if too short
			padded := make([]byte, size)
			copy(padded, sub)
			sub = padded
		}

		active, err := w.vad.Process(w.sampleRate, sub)
		if err != nil {
			return false, fmt.Errorf("VAD processing failed: %w", err)
		}
		if active {
			return true, nil
		}
	}

	return false, nil
}

// isNativeFrame reports whether n bytes are a 10, 20 or 30 ms frame
func (w *WebRTC) isNativeFrame(n int) bool {
	for _, ms := range []int{10, 20, 30} {
		if n == w.sampleRate*ms/1000*2 {
			return true
		}
	}
	return false
}

// subFrameBytes returns the byte length of a 10ms frame
func (w *WebRTC) subFrameBytes() int {
	return w.sampleRate / 100 * 2
}

// SetMode sets the VAD aggressiveness mode (0-3)
func (w *WebRTC) SetMode(mode int) error {
	if mode < 0 || mode > 3 {
		return fmt.Errorf("mode must be between 0 and 3")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.vad.SetMode(mode); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	w.mode = mode
	return nil
}

// Mode returns the current aggressiveness mode
func (w *WebRTC) Mode() int {
	return w.mode
}

// SampleRate returns the sample rate
func (w *WebRTC) SampleRate() int {
	return w.sampleRate
}
