// Package tui provides Bubble Tea TUI components for the framesync CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - TUI views show the same payloads as the non-TUI output
//   - The host monitor is the only view that sends anything to a controller
package tui

import "github.com/charmbracelet/lipgloss"

// tone groups message types and outcomes by how they read at a glance.
type tone int

const (
	toneNeutral tone = iota
	toneInfo
	toneGood
	tonePending
	toneBad
)

var toneColors = map[tone]lipgloss.Color{
	toneNeutral: lipgloss.Color("#E5E7EB"),
	toneInfo:    lipgloss.Color("#3B82F6"),
	toneGood:    lipgloss.Color("#10B981"),
	tonePending: lipgloss.Color("#F59E0B"),
	toneBad:     lipgloss.Color("#EF4444"),
}

var muted = lipgloss.Color("#6B7280")

// statusTones maps protocol message types and host outcomes to a tone.
// Anything missing renders neutral.
var statusTones = map[string]tone{
	"settled":  toneGood,
	"ready":    toneGood,
	"resize":   toneGood,
	"load":     toneGood,
	"navigate": toneGood,

	"hello":             tonePending,
	"loading":           tonePending,
	"constructor":       tonePending,
	"containerSizeLoad": tonePending,
	"reload":            tonePending,
	"incomplete":        tonePending,

	"failed":       toneBad,
	"fatal":        toneBad,
	"crashed":      toneBad,
	"error":        toneBad,
	"fatalError":   toneBad,
	"invalidError": toneBad,
	"unload":       toneBad,
}

// Shared styles.
var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(muted).Width(12)
	ValueStyle = lipgloss.NewStyle().Foreground(toneColors[toneNeutral])
	ErrorStyle = lipgloss.NewStyle().Foreground(toneColors[toneBad])
	MutedStyle = lipgloss.NewStyle().Foreground(muted)
	HelpStyle  = lipgloss.NewStyle().Foreground(muted).MarginTop(1)
	BoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(1, 2)

	statBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(16).
			Align(lipgloss.Center)
)

// StatusStyle colors an outcome or message type by its tone.
func StatusStyle(status string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(toneColors[statusTones[status]])
}

// statBox renders one labelled counter with a border in the given tone.
func statBox(label string, value int, t tone) string {
	return statBoxStyle.BorderForeground(toneColors[t]).Render(
		MutedStyle.Render(label) + "\n" + lipgloss.NewStyle().Bold(true).Render(itoa(value)),
	)
}
