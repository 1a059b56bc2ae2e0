// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     capture
// Description: Audio source abstraction and bounded delivery pipeline
// Created:     2026-10-12
// License:     MIT
// ============================================================================

// Package capture produces interleaved s16le PCM buffers from capture devices,
// raw streams and WAV files.
//
// Every source reads on its own goroutine and hands buffers to a second
// delivery goroutine through a queue bounded by Config.HighWaterMark. All
// Handler callbacks run on the delivery goroutine, one at a time and in order.
package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/msto63/speechrec/pkg/core/logging"
)

const (
	// DefaultSampleRate is the default capture rate (16kHz)
	DefaultSampleRate = 16000

	// DefaultFramesPerBuffer is the default buffer size in frames (20ms at 16kHz)
	DefaultFramesPerBuffer = 320

	// DefaultChannels is mono audio
	DefaultChannels = 1

	// DefaultHighWaterMark is the default queue limit in bytes
	DefaultHighWaterMark = 64000

	// AnyDevice selects the default input device
	AnyDevice = "any"
)

var (
	// ErrDeviceNotFound is returned when a device selector matches no input device
	ErrDeviceNotFound = errors.New("capture: device not found")

	// ErrFormatMismatch is returned when a file does not match the configured format
	ErrFormatMismatch = errors.New("capture: audio format mismatch")

	// ErrAlreadyRunning is returned by Start on a running source
	ErrAlreadyRunning = errors.New("capture: source already running")
)

// Config describes the PCM stream a source must produce
type Config struct {
	SampleRate      int
	FramesPerBuffer int
	Channels        int
	HighWaterMark   int    // queue limit in bytes
	DeviceID        string // "any", a device index or a device name
}

// DefaultConfig returns default capture configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:      DefaultSampleRate,
		FramesPerBuffer: DefaultFramesPerBuffer,
		Channels:        DefaultChannels,
		HighWaterMark:   DefaultHighWaterMark,
		DeviceID:        AnyDevice,
	}
}

// BufferBytes returns the size of one captured buffer in bytes
func (c Config) BufferBytes() int {
	return c.FramesPerBuffer * c.Channels * 2
}

// QueueLength returns how many buffers fit below the high-water mark (at least one)
func (c Config) QueueLength() int {
	size := c.BufferBytes()
	if size <= 0 {
		return 1
	}
	return max(1, c.HighWaterMark/size)
}

// Handler receives the output of a source. Nil fields are skipped.
type Handler struct {
	// OnData receives one interleaved buffer. The slice is owned by the callee.
	OnData func(buf []byte)

	// OnError receives capture failures. The source keeps running.
	OnError func(err error)

	// OnEnd is called once when a finite source is exhausted
	OnEnd func()
}

// Source is a producer of PCM buffers
type Source interface {
	// Start begins capturing and returns once the source is running
	Start(ctx context.Context, h Handler) error

	// Stop halts capturing. It must not wait for Handler callbacks to return,
	// so it is safe to call from inside one. Calling Stop twice is a no-op.
	Stop() error
}

type itemKind int

const (
	itemData itemKind = iota
	itemError
	itemEnd
)

type item struct {
	kind itemKind
	data []byte
	err  error
}

// pipeline decouples the reading goroutine from handler execution
type pipeline struct {
	queue    chan item
	handler  Handler
	logger   *logging.Logger
	blocking bool
	dropped  atomic.Int64
}

// newPipeline starts the delivery goroutine; it exits when ctx is done or
// after delivering an end item. Live sources drop buffers when the queue is
// full, blocking sources (files, pipes) wait instead.
func newPipeline(ctx context.Context, size int, h Handler, logger *logging.Logger, blocking bool) *pipeline {
	p := &pipeline{
		queue:    make(chan item, size),
		handler:  h,
		logger:   logger,
		blocking: blocking,
	}
	go p.deliver(ctx)
	return p
}

func (p *pipeline) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-p.queue:
			// Stop may have been called while this item was queued
			if ctx.Err() != nil {
				return
			}
			switch it.kind {
			case itemData:
				if p.handler.OnData != nil {
					p.handler.OnData(it.data)
				}
			case itemError:
				if p.handler.OnError != nil {
					p.handler.OnError(it.err)
				}
			case itemEnd:
				if p.handler.OnEnd != nil {
					p.handler.OnEnd()
				}
				return
			}
		}
	}
}

// push enqueues a data buffer. It reports false once ctx is done.
func (p *pipeline) push(ctx context.Context, buf []byte) bool {
	if p.blocking {
		return p.send(ctx, item{kind: itemData, data: buf})
	}

	select {
	case <-ctx.Done():
		return false
	case p.queue <- item{kind: itemData, data: buf}:
	default:
		// Queue full, skip this buffer
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.logger.Warn("capture queue full, dropping buffer", "dropped", n, "queue", cap(p.queue))
		}
	}
	return true
}

// fail enqueues an error; errors are never dropped
func (p *pipeline) fail(ctx context.Context, err error) bool {
	return p.send(ctx, item{kind: itemError, err: err})
}

// end enqueues the end-of-stream marker
func (p *pipeline) end(ctx context.Context) {
	p.send(ctx, item{kind: itemEnd})
}

func (p *pipeline) send(ctx context.Context, it item) bool {
	select {
	case <-ctx.Done():
		return false
	case p.queue <- it:
		return true
	}
}

// Dropped returns the number of buffers discarded because the queue was full
func (p *pipeline) Dropped() int64 {
	return p.dropped.Load()
}

// runner holds the start/stop bookkeeping shared by all sources
type runner struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// begin marks the runner as running and returns the reader context and the
// channel the reader closes on exit. Readers close the channel they were
// given, never r.done, since a restart replaces it.
func (r *runner) begin(ctx context.Context) (context.Context, chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil, nil, ErrAlreadyRunning
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.running = true
	return ctx, r.done, nil
}

// abort undoes begin when startup fails
func (r *runner) abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel()
	close(r.done)
	r.running = false
}

// halt cancels the reader and, if wait is set, waits for it to exit. It
// reports false if the runner was not running.
func (r *runner) halt(wait bool) bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	if wait {
		<-done
	}
	return true
}

// IsRunning returns whether the source is running
func (r *runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
