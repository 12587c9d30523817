package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/framesync/host"
	"github.com/pithecene-io/framesync/types"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewHostOutcome, true},
		{ViewNavlog, true},
		{"version", false},
		{"serve", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("version", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestRenderReportStatic_Outcome(t *testing.T) {
	summary := &host.Summary{
		Status:  host.OutcomeSettled,
		Message: "content settled",
		Height:  150,
		Events: []host.EventRow{
			{At: "0s", Direction: "in", Type: "hello"},
			{At: "1ms", Direction: "in", Type: "ready", Height: "150", Detail: "ack requested"},
		},
	}
	out := RenderReportStatic(ViewHostOutcome, summary)
	for _, want := range []string{"Frame Outcome", "settled", "150", "ack requested"} {
		if !strings.Contains(out, want) {
			t.Errorf("outcome view missing %q", want)
		}
	}
}

func TestRenderReportStatic_WrongData(t *testing.T) {
	out := RenderReportStatic(ViewNavlog, "not entries")
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid data message, got %q", out)
	}
}

func TestRenderReportStatic_Navlog(t *testing.T) {
	entries := []types.NavigationEntry{
		{Type: types.NavigationLoad, URL: "https://render.example/a"},
		{Type: types.NavigationUnload, URL: "https://render.example/a"},
	}
	out := RenderReportStatic(ViewNavlog, entries)
	if !strings.Contains(out, "https://render.example/a") || !strings.Contains(out, "unload") {
		t.Errorf("navlog view missing entries: %q", out)
	}
}

type fakeResizer struct {
	widths []int
	err    error
}

func (f *fakeResizer) Resize(w int) error {
	f.widths = append(f.widths, w)
	return f.err
}

func (f *fakeResizer) Width() int { return 0 }

func inbound(typ types.MessageType, payload map[string]any) eventMsg {
	return eventMsg(host.Event{At: time.Now(), Direction: host.Inbound, Message: types.NewMessage(typ, payload)})
}

func TestMonitor_TracksStatuses(t *testing.T) {
	ch := make(chan host.Event)
	var m tea.Model = NewMonitorModel(&fakeResizer{}, 50, ch)

	load := types.LoadMessage(types.RenderRequest{Data: "<svg/>", Width: 300})
	m, _ = m.Update(eventMsg(host.Event{At: time.Now(), Direction: host.Outbound, Message: load}))
	m, _ = m.Update(inbound(types.StatusReady, types.ReadyPayload(150)))
	m, _ = m.Update(inbound(types.StatusResize, types.ResizePayload(200)))

	mm := m.(MonitorModel)
	if mm.width != 300 {
		t.Errorf("width = %d, want 300 from load", mm.width)
	}
	if mm.height != 200 || mm.resizes != 1 {
		t.Errorf("height=%d resizes=%d, want 200 and 1", mm.height, mm.resizes)
	}
	if mm.status != "awaiting ack" {
		t.Errorf("status = %q", mm.status)
	}

	m, _ = m.Update(inbound(types.StatusError, types.ErrorPayload("render failed\n\nmore")))
	mm = m.(MonitorModel)
	if mm.errors != 1 || mm.status != "failed" {
		t.Errorf("errors=%d status=%q", mm.errors, mm.status)
	}
	if !strings.Contains(mm.View(), "render failed") {
		t.Error("view should show the last error")
	}
}

func TestMonitor_ArrowKeysResize(t *testing.T) {
	r := &fakeResizer{}
	var m tea.Model = NewMonitorModel(r, 25, make(chan host.Event))
	m, _ = m.Update(eventMsg(host.Event{
		At:        time.Now(),
		Direction: host.Outbound,
		Message:   types.NewMessage(types.MessageContainerSize, map[string]any{types.KeyWidth: 400}),
	}))

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if cmd == nil {
		t.Fatal("expected a resize command")
	}
	cmd()
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	cmd()

	if len(r.widths) != 2 || r.widths[0] != 425 || r.widths[1] != 400 {
		t.Errorf("resizes = %v, want [425 400]", r.widths)
	}
}

func TestMonitor_ResizeError(t *testing.T) {
	r := &fakeResizer{err: errors.New("pipe closed")}
	var m tea.Model = NewMonitorModel(r, 10, make(chan host.Event))
	m, _ = m.Update(eventMsg(host.Event{At: time.Now(), Direction: host.Outbound, Message: types.NewMessage(types.MessageContainerSize, map[string]any{types.KeyWidth: 100})}))
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m, _ = m.Update(cmd())
	if got := m.(MonitorModel).lastErr; got != "pipe closed" {
		t.Errorf("lastErr = %q", got)
	}
}

func TestMonitor_ObserveNeverBlocks(t *testing.T) {
	mon := NewMonitor(&fakeResizer{}, 10)
	for range monitorBacklog + 10 {
		mon.Observe(host.Event{})
	}
}
