// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     capture
// Description: WAV file audio source
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/msto63/speechrec/pkg/core/logging"
)

// WAVFile replays the PCM payload of a 16-bit WAV file. The file must match
// the configured sample rate and channel count.
type WAVFile struct {
	runner
	path   string
	cfg    Config
	logger *logging.Logger
}

// NewWAVFile creates a source reading from the WAV file at path
func NewWAVFile(path string, cfg Config, logger *logging.Logger) *WAVFile {
	if logger == nil {
		logger = logging.Discard()
	}
	return &WAVFile{
		path:   path,
		cfg:    cfg,
		logger: logger.Named("wav"),
	}
}

// Start opens and validates the file, then begins reading
func (s *WAVFile) Start(ctx context.Context, h Handler) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s is not a valid WAV file", ErrFormatMismatch, s.path)
	}
	if dec.BitDepth != 16 || int(dec.SampleRate) != s.cfg.SampleRate || int(dec.NumChans) != s.cfg.Channels {
		f.Close()
		return fmt.Errorf("%w: %s is %d Hz/%d ch/%d bit, want %d Hz/%d ch/16 bit",
			ErrFormatMismatch, s.path, dec.SampleRate, dec.NumChans, dec.BitDepth,
			s.cfg.SampleRate, s.cfg.Channels)
	}

	ctx, done, err := s.begin(ctx)
	if err != nil {
		f.Close()
		return err
	}

	p := newPipeline(ctx, s.cfg.QueueLength(), h, s.logger, true)
	go s.readLoop(ctx, f, dec, p, done)
	return nil
}

func (s *WAVFile) readLoop(ctx context.Context, f *os.File, dec *wav.Decoder, p *pipeline, done chan struct{}) {
	defer close(done)
	defer f.Close()

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: s.cfg.Channels,
			SampleRate:  s.cfg.SampleRate,
		},
		Data:           make([]int, s.cfg.FramesPerBuffer*s.cfg.Channels),
		SourceBitDepth: 16,
	}

	for ctx.Err() == nil {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			p.fail(ctx, fmt.Errorf("wav decode failed: %w", err))
			p.end(ctx)
			return
		}
		if n == 0 {
			p.end(ctx)
			return
		}

		out := make([]byte, n*2)
		for i, v := range buf.Data[:n] {
			out[i*2] = byte(v)
			out[i*2+1] = byte(v >> 8)
		}
		if !p.push(ctx, out) {
			return
		}
	}
}

// Stop stops reading
func (s *WAVFile) Stop() error {
	s.halt(true)
	return nil
}
