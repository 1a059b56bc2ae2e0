package meter

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	colorPrimary   = lipgloss.Color("#7C3AED")
	colorSecondary = lipgloss.Color("#10B981")
	colorAccent    = lipgloss.Color("#F59E0B")
	colorError     = lipgloss.Color("#EF4444")
	colorMuted     = lipgloss.Color("#6B7280")
	colorFg        = lipgloss.Color("#F9FAFB")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	SpeakingStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	SilentStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	BarFilledStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	BarGateStyle = lipgloss.NewStyle().
			Foreground(colorAccent)

	BarEmptyStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	LabelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Bold(true)

	EventStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	TriggerStyle = lipgloss.NewStyle().
			Foreground(colorAccent)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// RenderKeyHint renders a key binding hint
func RenderKeyHint(key, desc string) string {
	return HelpKeyStyle.Render(key) + " " + HelpDescStyle.Render(desc)
}

// RenderStat renders a label/value pair
func RenderStat(label string, value any) string {
	return LabelStyle.Render(label+": ") + ValueStyle.Render(fmt.Sprint(value))
}
