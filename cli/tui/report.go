package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framesync/host"
	"github.com/pithecene-io/framesync/types"
)

// ReportModel is a Bubble Tea model for finished results.
type ReportModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewReportModel creates a new report model.
func NewReportModel(viewType string, data any) ReportModel {
	return ReportModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m ReportModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m ReportModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewHostOutcome:
		content = m.renderOutcome()
	case ViewNavlog:
		content = m.renderNavlog()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m ReportModel) renderOutcome() string {
	data, ok := m.data.(*host.Summary)
	if !ok {
		return "Invalid data type for host_outcome"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Frame Outcome"))
	b.WriteString("\n\n")

	var ready, resizes, failures int
	for _, e := range data.Events {
		if e.Direction != string(host.Inbound) {
			continue
		}
		switch types.MessageType(e.Type) {
		case types.StatusReady:
			ready++
		case types.StatusResize:
			resizes++
		case types.StatusError, types.StatusFatalError, types.StatusInvalidError:
			failures++
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Height", data.Height, toneInfo),
		statBox("Ready", ready, toneGood),
		statBox("Resizes", resizes, tonePending),
		statBox("Errors", failures, toneBad),
	))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Status", string(data.Status)},
		{"Message", data.Message},
		{"Exit Code", fmt.Sprintf("%d", data.ExitCode)},
		{"Duration", data.Duration},
	}
	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := ValueStyle.Render(row[1])
		if row[0] == "Status" {
			value = StatusStyle(row[1]).Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	if len(data.Events) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Messages"))
		b.WriteString("\n")
		for _, e := range data.Events {
			b.WriteString(eventLine(e))
			b.WriteString("\n")
		}
	}

	return BoxStyle.Render(b.String())
}

func (m ReportModel) renderNavlog() string {
	data, ok := m.data.([]types.NavigationEntry)
	if !ok {
		return "Invalid data type for navlog"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Navigation Log"))
	b.WriteString("\n\n")

	if len(data) == 0 {
		b.WriteString(MutedStyle.Render("(no entries)"))
		return BoxStyle.Render(b.String())
	}
	for i, e := range data {
		b.WriteString(fmt.Sprintf("%3d  %s %s",
			i+1,
			StatusStyle(string(e.Type)).Width(9).Render(string(e.Type)),
			ValueStyle.Render(e.URL)))
		if e.State != "" {
			b.WriteString(MutedStyle.Render("  state=" + e.State))
		}
		b.WriteString("\n")
	}

	return BoxStyle.Render(b.String())
}

// eventLine renders one message row: inbound statuses are colored,
// outbound host messages are muted.
func eventLine(e host.EventRow) string {
	arrow := "<-"
	style := StatusStyle(e.Type)
	if e.Direction == string(host.Outbound) {
		arrow = "->"
		style = MutedStyle
	}
	line := fmt.Sprintf("%8s %s %s", e.At, arrow, style.Width(18).Render(e.Type))
	if e.Width != "" {
		line += " width=" + e.Width
	}
	if e.Height != "" {
		line += " height=" + e.Height
	}
	if e.Detail != "" {
		line += " " + MutedStyle.Render(e.Detail)
	}
	return line
}

// keyMap defines key bindings.
type keyMap struct {
	Quit   key.Binding
	Grow   key.Binding
	Shrink key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Grow: key.NewBinding(
		key.WithKeys("right", "l", "+"),
		key.WithHelp("→", "wider"),
	),
	Shrink: key.NewBinding(
		key.WithKeys("left", "h", "-"),
		key.WithHelp("←", "narrower"),
	),
}

// RenderReportStatic renders a report without the full TUI.
func RenderReportStatic(viewType string, data any) string {
	model := NewReportModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
