// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     segment
// Description: Writes finished segments as WAV files
// Created:     2026-10-13
// License:     MIT
// ============================================================================

package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/msto63/speechrec/pkg/audio/wavfile"
)

// WAVSink writes segments as mono WAV files named after the segment id
type WAVSink struct {
	Dir string
}

// NewWAVSink creates the output directory if needed
func NewWAVSink(dir string) (*WAVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &WAVSink{Dir: dir}, nil
}

// Write stores the segment and sets its Path
func (s *WAVSink) Write(seg *Segment) (string, error) {
	path := filepath.Join(s.Dir, seg.ID+".wav")
	if err := wavfile.Write(path, seg.PCM, seg.SampleRate, 1); err != nil {
		return "", err
	}
	seg.Path = path
	return path, nil
}
