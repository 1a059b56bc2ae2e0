// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     segment
// Description: Assembles recorder events into speech segments
// Created:     2026-10-13
// License:     MIT
// ============================================================================

package segment

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msto63/speechrec/internal/recorder"
	"github.com/msto63/speechrec/pkg/audio/pcm"
)

// Segment is one chunk of speech with its pre-roll
type Segment struct {
	ID            string       `json:"id"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	SampleRate    int          `json:"sample_rate"`
	LeadingFrames int          `json:"leading_frames"`
	Frames        int          `json:"frames"` // frames after the chunk start
	PCM           []byte       `json:"-"`      // mono s16le
	Triggers      []TriggerHit `json:"triggers,omitempty"`
	Path          string       `json:"path,omitempty"`
}

// Duration returns the audio length of the segment
func (s *Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	samples := len(s.PCM) / pcm.SampleSize
	return time.Duration(samples) * time.Second / time.Duration(s.SampleRate)
}

// TriggerHit records a trigger firing
type TriggerHit struct {
	SegmentID string    `json:"segment_id"`
	TriggerID string    `json:"trigger_id"`
	Threshold int       `json:"threshold"`
	At        time.Time `json:"at"`
}

// Collector turns recorder events into segments
type Collector struct {
	// OnSegment receives every finished segment
	OnSegment func(seg *Segment)

	// OnTrigger receives every trigger hit
	OnTrigger func(hit TriggerHit)

	sampleRate int
	now        func() time.Time

	mu       sync.Mutex
	open     *Segment
	lastID   string
	skipNext bool
}

// NewCollector creates a collector for mono audio at sampleRate
func NewCollector(sampleRate int) *Collector {
	return &Collector{
		sampleRate: sampleRate,
		now:        time.Now,
	}
}

// Handlers returns the recorder handlers feeding this collector
func (c *Collector) Handlers() recorder.Handlers {
	return recorder.Handlers{
		OnAudio:      c.onAudio,
		OnChunkStart: c.onChunkStart,
		OnChunkEnd:   c.onChunkEnd,
		OnTrigger:    c.onTrigger,
	}
}

func (c *Collector) onChunkStart(leading []byte) {
	c.mu.Lock()
	// A strict reset during speech leaves the previous segment open
	prev := c.close()

	c.open = &Segment{
		ID:         uuid.New().String(),
		StartedAt:  c.now(),
		SampleRate: c.sampleRate,
		PCM:        append([]byte(nil), leading...),
	}
	// The frame that caused the chunk start is already part of the leading audio
	c.skipNext = true
	c.mu.Unlock()

	if prev != nil && c.OnSegment != nil {
		c.OnSegment(prev)
	}
}

func (c *Collector) onAudio(ev recorder.AudioEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open == nil {
		return
	}
	if c.skipNext {
		c.skipNext = false
		if len(ev.Frame) > 0 {
			c.open.LeadingFrames = len(c.open.PCM) / len(ev.Frame)
		}
		return
	}
	if ev.Speaking {
		c.open.PCM = append(c.open.PCM, ev.Frame...)
		c.open.Frames++
	}
}

func (c *Collector) onChunkEnd() {
	c.mu.Lock()
	seg := c.close()
	c.mu.Unlock()

	if seg != nil && c.OnSegment != nil {
		c.OnSegment(seg)
	}
}

func (c *Collector) onTrigger(t recorder.Trigger) {
	c.mu.Lock()
	hit := TriggerHit{
		SegmentID: c.lastID,
		TriggerID: t.ID,
		Threshold: t.Threshold,
		At:        c.now(),
	}
	if c.open != nil {
		hit.SegmentID = c.open.ID
		c.open.Triggers = append(c.open.Triggers, hit)
	}
	c.mu.Unlock()

	if c.OnTrigger != nil {
		c.OnTrigger(hit)
	}
}

// close finishes the open segment; the caller holds mu
func (c *Collector) close() *Segment {
	seg := c.open
	if seg == nil {
		return nil
	}
	seg.EndedAt = c.now()
	c.open = nil
	c.lastID = seg.ID
	c.skipNext = false
	return seg
}

// Flush finishes a segment that is still open, e.g. when recording stops
// mid-speech. It reports whether a segment was emitted.
func (c *Collector) Flush() bool {
	c.mu.Lock()
	seg := c.close()
	c.mu.Unlock()

	if seg == nil {
		return false
	}
	if c.OnSegment != nil {
		c.OnSegment(seg)
	}
	return true
}

// Open reports whether a segment is being collected
func (c *Collector) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open != nil
}
