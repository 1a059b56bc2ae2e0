// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     recorder
// Description: Speech/silence segmentation state machine
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package recorder

import (
	"fmt"

	"github.com/msto63/speechrec/pkg/audio/pcm"
	"github.com/msto63/speechrec/pkg/audio/vad"
)

// State is a snapshot of the segmenter
type State struct {
	Speaking           bool
	AudioStarted       bool
	ConsecutiveSpeech  int
	ConsecutiveSilence int
	LeadingFrames      int
}

// Segmenter is the speech/silence state machine. It performs no I/O and is
// not safe for concurrent use; Recorder serializes access to it.
type Segmenter struct {
	opts       Options
	classifier vad.Classifier

	speaking           bool
	audioStarted       bool
	consecutiveSpeech  int
	consecutiveSilence int
	leading            [][]byte
}

// NewSegmenter creates a segmenter in the silent state
func NewSegmenter(opts Options, classifier vad.Classifier) (*Segmenter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is required", ErrInvalidConfig)
	}

	// Triggers are copied so later changes by the caller have no effect
	opts.Triggers = append([]Trigger(nil), opts.Triggers...)

	return &Segmenter{
		opts:       opts,
		classifier: classifier,
		leading:    make([][]byte, 0, opts.LeadingPadding+1),
	}, nil
}

// Process runs one captured buffer through the state machine and returns the
// resulting events in emission order. On error the frame is skipped and the
// state is left untouched.
func (s *Segmenter) Process(buf []byte) ([]Event, error) {
	frame, err := pcm.ExtractChannel(buf, s.opts.ChannelNumber, s.opts.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("extract channel %d: %w", s.opts.ChannelID, err)
	}

	volume := pcm.Volume(frame)
	voiced, err := s.classifier.Classify(frame, s.opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	speech := voiced && volume > MinSpeechVolume

	if speech {
		s.consecutiveSilence = 0
		s.consecutiveSpeech++
	} else {
		s.consecutiveSilence++
		s.consecutiveSpeech = 0
	}

	events := make([]Event, 0, 2)

	if !s.speaking {
		s.leading = append(s.leading, frame)

		if s.consecutiveSpeech >= s.opts.SpeakingThreshold {
			s.audioStarted = true
			s.speaking = true
			if len(s.leading) > 0 {
				events = append(events, Event{Kind: EventChunkStart, Leading: pcm.Concat(s.leading)})
				s.clearLeading()
			}
		} else {
			s.trimLeading()
		}
	}

	silence := 0
	if s.audioStarted {
		silence = s.consecutiveSilence
	}
	events = append(events, Event{
		Kind: EventAudio,
		Audio: AudioEvent{
			Frame:    frame,
			Speaking: s.speaking,
			Speech:   speech,
			Volume:   volume,
			Silence:  silence,
		},
	})

	// Edge triggered: only the exact threshold ends a chunk
	if s.speaking && s.consecutiveSilence == s.opts.SilenceThreshold {
		s.speaking = false
		events = append(events, Event{Kind: EventChunkEnd})
	}

	if s.audioStarted {
		for _, t := range s.opts.Triggers {
			if s.consecutiveSilence == t.Threshold {
				events = append(events, Event{Kind: EventTrigger, Trigger: t})
			}
		}
	}

	return events, nil
}

// trimLeading drops the oldest frames beyond the configured padding
func (s *Segmenter) trimLeading() {
	drop := len(s.leading) - s.opts.LeadingPadding
	if drop <= 0 {
		return
	}
	n := copy(s.leading, s.leading[drop:])
	clear(s.leading[n:])
	s.leading = s.leading[:n]
}

func (s *Segmenter) clearLeading() {
	clear(s.leading)
	s.leading = s.leading[:0]
}

// Reset zeroes the run counters and the speech onset flag. The leading
// buffer and the speaking state are kept, so a recorder that is reset while
// speaking stays in the speaking state. Use StrictReset for a full reset.
func (s *Segmenter) Reset() {
	s.audioStarted = false
	s.consecutiveSilence = 0
	s.consecutiveSpeech = 0
}

// StrictReset returns the segmenter to its initial silent state
func (s *Segmenter) StrictReset() {
	s.Reset()
	s.speaking = false
	s.clearLeading()
}

// State returns a snapshot of the current state
func (s *Segmenter) State() State {
	return State{
		Speaking:           s.speaking,
		AudioStarted:       s.audioStarted,
		ConsecutiveSpeech:  s.consecutiveSpeech,
		ConsecutiveSilence: s.consecutiveSilence,
		LeadingFrames:      len(s.leading),
	}
}

// Options returns the segmenter configuration
func (s *Segmenter) Options() Options {
	return s.opts
}
