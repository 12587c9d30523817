package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framesync/host"
	"github.com/pithecene-io/framesync/types"
)

// monitorBacklog is how many events may queue before the monitor drops them.
const monitorBacklog = 256

// monitorRows is how many recent messages the monitor shows.
const monitorRows = 14

// Resizer changes the container width of a hosted frame.
type Resizer interface {
	Resize(width int) error
	Width() int
}

// eventMsg carries one recorded host event into the model.
type eventMsg host.Event

// resizeErrMsg reports a failed resize send.
type resizeErrMsg struct{ err error }

// MonitorModel is a live Bubble Tea model of a hosted frame. The arrow
// keys change the container width.
type MonitorModel struct {
	resizer Resizer
	step    int
	events  <-chan host.Event

	start   time.Time
	rows    []host.EventRow
	status  string
	width   int
	height  int
	resizes int
	errors  int
	lastErr string

	quitting bool
}

// NewMonitorModel creates a monitor reading events from ch.
func NewMonitorModel(r Resizer, step int, ch <-chan host.Event) MonitorModel {
	if step <= 0 {
		step = 50
	}
	return MonitorModel{
		resizer: r,
		step:    step,
		events:  ch,
		status:  "waiting",
		width:   r.Width(),
	}
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(ch <-chan host.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m = m.observe(host.Event(msg))
		return m, waitForEvent(m.events)

	case resizeErrMsg:
		m.lastErr = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Grow):
			return m.resize(m.width + m.step)
		case key.Matches(msg, keys.Shrink):
			return m.resize(m.width - m.step)
		}
	}

	return m, nil
}

func (m MonitorModel) resize(width int) (tea.Model, tea.Cmd) {
	if width <= 0 {
		return m, nil
	}
	m.width = width
	r := m.resizer
	return m, func() tea.Msg {
		if err := r.Resize(width); err != nil {
			return resizeErrMsg{err: err}
		}
		return nil
	}
}

func (m MonitorModel) observe(e host.Event) MonitorModel {
	if m.start.IsZero() {
		m.start = e.At
	}
	row := e.Row(m.start)
	m.rows = append(m.rows, row)
	if len(m.rows) > monitorRows {
		m.rows = m.rows[len(m.rows)-monitorRows:]
	}
	if e.Direction != host.Inbound {
		if w, ok := e.Message.Int(types.KeyWidth); ok {
			m.width = w
		}
		return m
	}

	msg := e.Message
	switch msg.Type {
	case types.StatusReady:
		m.status = "settled"
		if msg.Bool(types.KeyAck) {
			m.status = "awaiting ack"
		}
		m.height, _ = msg.Int(types.KeyHeight)
	case types.StatusResize:
		m.resizes++
		m.height, _ = msg.Int(types.KeyHeight)
	case types.StatusLoading:
		m.status = "loading"
	case types.StatusError, types.StatusFatalError, types.StatusInvalidError:
		m.errors++
		m.status = "failed"
		m.lastErr, _ = msg.Text(types.KeyError)
	}
	return m
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Frame Monitor"))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Width", m.width, toneInfo),
		statBox("Height", m.height, toneGood),
		statBox("Resizes", m.resizes, tonePending),
		statBox("Errors", m.errors, toneBad),
	))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("State:"), StatusStyle(m.status).Render(m.status)))
	if m.lastErr != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Last error:"), ErrorStyle.Render(firstLine(m.lastErr))))
	}
	b.WriteString("\n")
	for _, row := range m.rows {
		b.WriteString(eventLine(row))
		b.WriteString("\n")
	}

	help := HelpStyle.Render("←/→ change width • q quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// Monitor runs a MonitorModel fed by host events.
type Monitor struct {
	events chan host.Event
	model  MonitorModel
}

// NewMonitor creates a monitor that resizes through r.
func NewMonitor(r Resizer, step int) *Monitor {
	ch := make(chan host.Event, monitorBacklog)
	return &Monitor{events: ch, model: NewMonitorModel(r, step, ch)}
}

// Observe queues e for display. It never blocks; events beyond the
// backlog are dropped.
func (m *Monitor) Observe(e host.Event) {
	select {
	case m.events <- e:
	default:
	}
}

// Run shows the monitor until the user quits.
func (m *Monitor) Run() error {
	p := tea.NewProgram(m.model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
