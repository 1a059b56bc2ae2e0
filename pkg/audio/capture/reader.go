// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     capture
// Description: Raw PCM source for files, pipes and stdin
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/msto63/speechrec/pkg/core/logging"
)

// Reader replays raw interleaved s16le PCM from an io.Reader (a file, a pipe,
// stdin) in buffers of Config.BufferBytes(). Unlike a live device it applies
// backpressure instead of dropping buffers.
type Reader struct {
	runner
	r      io.Reader
	cfg    Config
	logger *logging.Logger
}

// NewReader creates a source reading from r
func NewReader(r io.Reader, cfg Config, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reader{
		r:      r,
		cfg:    cfg,
		logger: logger.Named("reader"),
	}
}

// Start begins reading
func (s *Reader) Start(ctx context.Context, h Handler) error {
	if s.cfg.BufferBytes() <= 0 {
		return fmt.Errorf("capture: invalid buffer size %d", s.cfg.BufferBytes())
	}

	ctx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}

	p := newPipeline(ctx, s.cfg.QueueLength(), h, s.logger, true)
	go s.readLoop(ctx, p, done)
	return nil
}

func (s *Reader) readLoop(ctx context.Context, p *pipeline, done chan struct{}) {
	defer close(done)

	size := s.cfg.BufferBytes()
	for ctx.Err() == nil {
		buf := make([]byte, size)
		n, err := io.ReadFull(s.r, buf)
		if n > 0 {
			// A short final buffer is delivered as-is
			if !p.push(ctx, buf[:n]) {
				return
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			s.logger.Debug("input exhausted")
		default:
			p.fail(ctx, fmt.Errorf("read failed: %w", err))
		}
		p.end(ctx)
		return
	}
}

// Stop stops reading. It does not wait for a blocked Read to return; after a
// restart that Read may still consume one buffer of the underlying reader.
func (s *Reader) Stop() error {
	s.halt(false)
	return nil
}
