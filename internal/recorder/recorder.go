// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     recorder
// Description: Speech recorder session control
// Created:     2026-10-12
// License:     MIT
// ============================================================================

// Package recorder splits a captured audio stream into speech chunks.
//
// A Recorder pulls buffers from a capture.Source, runs each through a
// Segmenter and delivers the resulting events to the Handlers supplied at
// Start. Events of one frame are delivered in the order audio, chunk end,
// triggers; a chunk start precedes the audio event of the frame that caused it.
package recorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/msto63/speechrec/pkg/audio/capture"
	"github.com/msto63/speechrec/pkg/audio/vad"
	"github.com/msto63/speechrec/pkg/core/logging"
)

// SourceFactory opens the audio source for a session
type SourceFactory func(cfg capture.Config) (capture.Source, error)

// StartOptions configures one recording session
type StartOptions struct {
	// DeviceID selects the capture device ("any" by default)
	DeviceID string

	Handlers Handlers

	// OnEnd is called when a finite source (file, pipe) is exhausted
	OnEnd func()
}

// Option customizes a Recorder
type Option func(*Recorder)

// WithClassifier replaces the default WebRTC classifier
func WithClassifier(c vad.Classifier) Option {
	return func(r *Recorder) {
		r.classifier = c
	}
}

// WithSourceFactory replaces the default PortAudio source
func WithSourceFactory(f SourceFactory) Option {
	return func(r *Recorder) {
		r.factory = f
	}
}

// WithDeviceLister replaces the device enumeration used by Devices
func WithDeviceLister(f func() ([]capture.Device, error)) Option {
	return func(r *Recorder) {
		r.devices = f
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// Recorder runs the segmenter over a live or recorded audio source
type Recorder struct {
	opts       Options
	classifier vad.Classifier
	factory    SourceFactory
	devices    func() ([]capture.Device, error)
	logger     *logging.Logger

	mu       sync.Mutex
	seg      *Segmenter
	source   capture.Source
	handlers Handlers
	running  bool
	session  uint64
	inflight *sync.WaitGroup // frames of the current session being dispatched
}

// New creates a recorder. Invalid options are rejected here rather than
// surfacing mid-stream.
func New(opts Options, deps ...Option) (*Recorder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := &Recorder{
		opts:    opts,
		devices: capture.Devices,
	}
	for _, opt := range deps {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logging.Discard()
	}
	r.logger = r.logger.Named("recorder")

	if r.classifier == nil {
		c, err := vad.NewWebRTC(vad.Config{SampleRate: opts.SampleRate, Mode: opts.Level})
		if err != nil {
			return nil, fmt.Errorf("failed to create classifier: %w", err)
		}
		r.classifier = c
	}

	if r.factory == nil {
		logger := r.logger
		r.factory = func(cfg capture.Config) (capture.Source, error) {
			return capture.NewPortAudio(cfg, logger), nil
		}
	}

	seg, err := NewSegmenter(opts, r.classifier)
	if err != nil {
		return nil, err
	}
	r.seg = seg

	return r, nil
}

// Start resets all state, opens the source and begins processing frames
func (r *Recorder) Start(ctx context.Context, so StartOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyStarted
	}

	cfg := r.opts.CaptureConfig(so.DeviceID)
	src, err := r.factory(cfg)
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}

	r.seg.StrictReset()
	r.session++
	session := r.session
	r.handlers = so.Handlers
	r.inflight = &sync.WaitGroup{}

	h := capture.Handler{
		OnData: func(buf []byte) {
			r.onData(session, buf)
		},
		OnError: func(err error) {
			r.onError(session, err)
		},
		OnEnd: func() {
			r.logger.Info("Audio source exhausted")
			if so.OnEnd != nil {
				so.OnEnd()
			}
		},
	}

	if err := src.Start(ctx, h); err != nil {
		return fmt.Errorf("failed to start audio source: %w", err)
	}

	r.source = src
	r.running = true

	r.logger.Info("Recording started",
		"device", cfg.DeviceID,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"channel_id", r.opts.ChannelID,
		"frame_ms", r.opts.FrameDurationMs(),
		"triggers", len(r.opts.Triggers),
	)
	return nil
}

// onData processes one buffer. Events are dispatched after the lock is
// released so handlers may call Stop or Reset.
func (r *Recorder) onData(session uint64, buf []byte) {
	r.mu.Lock()
	if !r.running || session != r.session {
		r.mu.Unlock()
		return
	}
	events, err := r.seg.Process(buf)
	h := r.handlers
	inflight := r.inflight
	inflight.Add(1)
	r.mu.Unlock()
	defer inflight.Done()

	if err != nil {
		r.onError(session, fmt.Errorf("%w: %w", ErrFrame, err))
		return
	}

	for _, ev := range events {
		switch ev.Kind {
		case EventChunkStart:
			r.logger.Debug("Chunk started", "leading_bytes", len(ev.Leading))
		case EventChunkEnd:
			r.logger.Debug("Chunk ended")
		case EventTrigger:
			r.logger.Debug("Trigger fired", "trigger", ev.Trigger.ID, "threshold", ev.Trigger.Threshold)
		}
	}
	h.Dispatch(events)
}

func (r *Recorder) onError(session uint64, err error) {
	r.mu.Lock()
	live := r.running && session == r.session
	r.mu.Unlock()
	if !live {
		return
	}

	r.logger.Warn("Recorder error", "error", err)
	if r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}

// Stop halts the source and resets the counters. Calling Stop on a stopped
// recorder does nothing.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	src := r.source
	r.source = nil
	r.seg.Reset()
	r.mu.Unlock()

	if err := src.Stop(); err != nil {
		return fmt.Errorf("failed to stop audio source: %w", err)
	}

	r.logger.Info("Recording stopped")
	return nil
}

// Shutdown stops the recorder like Stop and then waits until frames read
// before the stop have been dispatched, or until ctx is done. It must not be
// called from a handler.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	inflight := r.inflight
	r.mu.Unlock()

	if err := r.Stop(); err != nil {
		return err
	}
	if inflight == nil {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for event dispatch: %w", ctx.Err())
	}
}

// Reset zeroes the run counters and the speech onset flag. The leading
// buffer and the speaking state are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seg.Reset()
}

// StrictReset returns the segmenter to its initial silent state
func (r *Recorder) StrictReset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seg.StrictReset()
}

// State returns a snapshot of the segmenter state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seg.State()
}

// Running reports whether a session is active
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Options returns the recorder options
func (r *Recorder) Options() Options {
	return r.opts
}

// Devices lists the available capture devices
func (r *Recorder) Devices() ([]capture.Device, error) {
	return r.devices()
}
