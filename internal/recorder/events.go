// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     recorder
// Description: Recorder events and handler fan-out
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package recorder

// EventKind identifies a recorder event
type EventKind int

const (
	EventAudio EventKind = iota
	EventChunkStart
	EventChunkEnd
	EventTrigger
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventChunkStart:
		return "chunk_start"
	case EventChunkEnd:
		return "chunk_end"
	case EventTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// AudioEvent is reported once per processed frame
type AudioEvent struct {
	// Frame holds the analysed channel. Handlers must not modify it.
	Frame []byte

	// Speaking is the segmenter state after the frame was buffered
	Speaking bool

	// Speech is the raw per-frame verdict (classifier and volume gate)
	Speech bool

	Volume int

	// Silence is the current silence run, or 0 before the first speech onset
	Silence int
}

// Event is one notification produced by the segmenter
type Event struct {
	Kind    EventKind
	Audio   AudioEvent // EventAudio
	Leading []byte     // EventChunkStart: concatenated pre-roll frames
	Trigger Trigger    // EventTrigger
}

// Handlers are the optional event callbacks of a session. Nil slots are skipped.
type Handlers struct {
	OnAudio      func(ev AudioEvent)
	OnChunkStart func(leading []byte)
	OnChunkEnd   func()
	OnTrigger    func(t Trigger)
}

// Dispatch delivers events in order
func (h Handlers) Dispatch(events []Event) {
	for _, ev := range events {
		switch ev.Kind {
		case EventAudio:
			if h.OnAudio != nil {
				h.OnAudio(ev.Audio)
			}
		case EventChunkStart:
			if h.OnChunkStart != nil {
				h.OnChunkStart(ev.Leading)
			}
		case EventChunkEnd:
			if h.OnChunkEnd != nil {
				h.OnChunkEnd()
			}
		case EventTrigger:
			if h.OnTrigger != nil {
				h.OnTrigger(ev.Trigger)
			}
		}
	}
}

// Multi fans events out to several handler sets, in argument order
func Multi(sets ...Handlers) Handlers {
	var m Handlers

	var onAudio []func(AudioEvent)
	var onStart []func([]byte)
	var onEnd []func()
	var onTrigger []func(Trigger)
	for _, s := range sets {
		if s.OnAudio != nil {
			onAudio = append(onAudio, s.OnAudio)
		}
		if s.OnChunkStart != nil {
			onStart = append(onStart, s.OnChunkStart)
		}
		if s.OnChunkEnd != nil {
			onEnd = append(onEnd, s.OnChunkEnd)
		}
		if s.OnTrigger != nil {
			onTrigger = append(onTrigger, s.OnTrigger)
		}
	}

	if len(onAudio) > 0 {
		m.OnAudio = func(ev AudioEvent) {
			for _, f := range onAudio {
				f(ev)
			}
		}
	}
	if len(onStart) > 0 {
		m.OnChunkStart = func(leading []byte) {
			for _, f := range onStart {
				f(leading)
			}
		}
	}
	if len(onEnd) > 0 {
		m.OnChunkEnd = func() {
			for _, f := range onEnd {
				f()
			}
		}
	}
	if len(onTrigger) > 0 {
		m.OnTrigger = func(t Trigger) {
			for _, f := range onTrigger {
				f(t)
			}
		}
	}
	return m
}
