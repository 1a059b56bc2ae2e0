package meter

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/msto63/speechrec/internal/recorder"
	"github.com/msto63/speechrec/internal/segment"
)

// Message types forwarded from the recorder

type audioMsg recorder.AudioEvent

type chunkStartMsg struct {
	leadingBytes int
	at           time.Time
}

type chunkEndMsg struct {
	at time.Time
}

type triggerMsg struct {
	trigger recorder.Trigger
	at      time.Time
}

type segmentMsg struct {
	id       string
	duration time.Duration
	path     string
}

type errMsg struct {
	err error
}

// sender is the part of *tea.Program used to forward events
type sender interface {
	Send(msg tea.Msg)
}

// Handlers returns recorder handlers that forward events to the program
func Handlers(p sender) recorder.Handlers {
	return recorder.Handlers{
		OnAudio: func(ev recorder.AudioEvent) {
			// The frame is not needed for display
			ev.Frame = nil
			p.Send(audioMsg(ev))
		},
		OnChunkStart: func(leading []byte) {
			p.Send(chunkStartMsg{leadingBytes: len(leading), at: time.Now()})
		},
		OnChunkEnd: func() {
			p.Send(chunkEndMsg{at: time.Now()})
		},
		OnTrigger: func(t recorder.Trigger) {
			p.Send(triggerMsg{trigger: t, at: time.Now()})
		},
	}
}

// SegmentSaved reports a finished segment to the program
func SegmentSaved(p sender, seg *segment.Segment) {
	p.Send(segmentMsg{id: seg.ID, duration: seg.Duration(), path: seg.Path})
}

// Error reports a recorder error to the program
func Error(p sender, err error) {
	p.Send(errMsg{err: err})
}
