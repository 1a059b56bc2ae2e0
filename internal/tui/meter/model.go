// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     meter
// Description: Live terminal meter for a running recorder
// Created:     2026-10-13
// License:     MIT
// ============================================================================

package meter

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/msto63/speechrec/internal/recorder"
)

// Config holds meter configuration
type Config struct {
	Title      string
	MaxVolume  int // volume shown as a full bar
	BarWidth   int
	MaxEntries int // lines kept in the event log

	// OnReset and OnStrictReset are called for the r and R keys. May be nil.
	OnReset       func()
	OnStrictReset func()
}

// DefaultConfig returns default meter configuration
func DefaultConfig() Config {
	return Config{
		Title:      "speechrec",
		MaxVolume:  4000,
		BarWidth:   40,
		MaxEntries: 8,
	}
}

// Model is the Bubbletea model of the meter
type Model struct {
	cfg     Config
	spinner spinner.Model

	width    int
	speaking bool
	speech   bool
	volume   int
	peak     int
	silence  int
	frames   int
	chunks   int
	triggers int
	segments int
	entries  []string
	err      error
}

// New creates a meter model
func New(cfg Config) Model {
	def := DefaultConfig()
	if cfg.MaxVolume <= 0 {
		cfg.MaxVolume = def.MaxVolume
	}
	if cfg.BarWidth <= 0 {
		cfg.BarWidth = def.BarWidth
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.Title == "" {
		cfg.Title = def.Title
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpeakingStyle

	return Model{
		cfg:     cfg,
		spinner: s,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if m.cfg.OnReset != nil {
				m.cfg.OnReset()
			}
			m.addEntry(EventStyle.Render("Zähler zurückgesetzt"), time.Now())
		case "R":
			if m.cfg.OnStrictReset != nil {
				m.cfg.OnStrictReset()
			}
			m.speaking = false
			m.addEntry(EventStyle.Render("Vollständig zurückgesetzt"), time.Now())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case audioMsg:
		m.frames++
		m.speaking = msg.Speaking
		m.speech = msg.Speech
		m.volume = msg.Volume
		m.silence = msg.Silence
		if msg.Volume > m.peak {
			m.peak = msg.Volume
		}

	case chunkStartMsg:
		m.chunks++
		m.addEntry(SpeakingStyle.Render(fmt.Sprintf("Sprache erkannt (%d Bytes Vorlauf)", msg.leadingBytes)), msg.at)

	case chunkEndMsg:
		m.speaking = false
		m.addEntry(EventStyle.Render("Sprache beendet"), msg.at)

	case triggerMsg:
		m.triggers++
		m.addEntry(TriggerStyle.Render(fmt.Sprintf("Trigger %s (%d)", msg.trigger.ID, msg.trigger.Threshold)), msg.at)

	case segmentMsg:
		m.segments++
		text := fmt.Sprintf("Segment %s gespeichert (%s)", shortID(msg.id), msg.duration.Round(10*time.Millisecond))
		if msg.path != "" {
			text += " " + msg.path
		}
		m.addEntry(EventStyle.Render(text), time.Now())

	case errMsg:
		m.err = msg.err
		m.addEntry(ErrorStyle.Render("Fehler: "+msg.err.Error()), time.Now())
	}

	return m, nil
}

func (m *Model) addEntry(text string, at time.Time) {
	m.entries = append(m.entries, LabelStyle.Render(at.Format("15:04:05"))+" "+text)
	if over := len(m.entries) - m.cfg.MaxEntries; over > 0 {
		m.entries = m.entries[over:]
	}
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(m.cfg.Title))
	b.WriteString("\n")

	var status string
	if m.speaking {
		status = m.spinner.View() + " " + SpeakingStyle.Render("SPRICHT")
	} else {
		status = SilentStyle.Render("○ Stille")
	}
	b.WriteString(status)
	b.WriteString("\n\n")

	b.WriteString(m.renderBar())
	b.WriteString(fmt.Sprintf(" %5d", m.volume))
	b.WriteString("\n\n")

	stats := []string{
		RenderStat("Frames", m.frames),
		RenderStat("Stille", m.silence),
		RenderStat("Spitze", m.peak),
		RenderStat("Chunks", m.chunks),
		RenderStat("Trigger", m.triggers),
		RenderStat("Segmente", m.segments),
	}
	b.WriteString(strings.Join(stats, "  "))
	b.WriteString("\n")

	if len(m.entries) > 0 {
		b.WriteString("\n")
		b.WriteString(PanelStyle.Render(strings.Join(m.entries, "\n")))
		b.WriteString("\n")
	}

	help := []string{
		RenderKeyHint("r", "Reset"),
		RenderKeyHint("R", "Voll-Reset"),
		RenderKeyHint("q", "Beenden"),
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(help, "  "))

	return b.String()
}

// renderBar draws the volume bar with the speech gate marked
func (m Model) renderBar() string {
	width := m.cfg.BarWidth
	filled := clamp(m.volume*width/m.cfg.MaxVolume, 0, width)
	gate := clamp(recorder.MinSpeechVolume*width/m.cfg.MaxVolume, 0, width-1)

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == gate:
			b.WriteString(BarGateStyle.Render("│"))
		case i < filled:
			b.WriteString(BarFilledStyle.Render("█"))
		default:
			b.WriteString(BarEmptyStyle.Render("░"))
		}
	}
	return b.String()
}

// State returns the values shown by the meter
func (m Model) State() (speaking bool, volume, chunks, triggers int) {
	return m.speaking, m.volume, m.chunks, m.triggers
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Run starts the meter and blocks until the user quits. setup receives the
// program before it starts so recorder events can be forwarded to it.
func Run(cfg Config, setup func(p *tea.Program) error) error {
	p := tea.NewProgram(New(cfg))
	if setup != nil {
		if err := setup(p); err != nil {
			return err
		}
	}
	_, err := p.Run()
	return err
}
