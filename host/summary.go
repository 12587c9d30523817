package host

import (
	"strconv"
	"time"

	"github.com/pithecene-io/framesync/types"
)

// EventRow is a flattened, printable event.
type EventRow struct {
	At        string `json:"at" yaml:"at"`
	Direction string `json:"direction" yaml:"direction"`
	Type      string `json:"type" yaml:"type"`
	Width     string `json:"width,omitempty" yaml:"width,omitempty"`
	Height    string `json:"height,omitempty" yaml:"height,omitempty"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Summary is the printable report of a hosted session.
type Summary struct {
	Status   OutcomeStatus `json:"status" yaml:"status"`
	Message  string        `json:"message" yaml:"message"`
	Height   int           `json:"height" yaml:"height"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Duration string        `json:"duration" yaml:"duration"`
	Events   []EventRow    `json:"events" yaml:"events"`
}

// Row flattens e. Times are relative to start.
func (e Event) Row(start time.Time) EventRow {
	m := e.Message
	row := EventRow{
		At:        e.At.Sub(start).Round(time.Millisecond).String(),
		Direction: string(e.Direction),
		Type:      string(m.Type),
	}
	if w, ok := m.Int(types.KeyWidth); ok {
		row.Width = strconv.Itoa(w)
	}
	if h, ok := m.Int(types.KeyHeight); ok {
		row.Height = strconv.Itoa(h)
	}
	switch {
	case m.Type.IsFailure():
		row.Detail, _ = m.Text(types.KeyError)
	case m.Type == types.StatusReady:
		if m.Bool(types.KeyAck) {
			row.Detail = "ack requested"
		}
	}
	return row
}

// Summary flattens r for printing.
func (r *Result) Summary() *Summary {
	s := &Summary{
		Status:   r.Outcome.Status,
		Message:  r.Outcome.Message,
		Height:   r.Outcome.Height,
		ExitCode: r.ExitCode,
		Duration: r.Duration.Round(time.Millisecond).String(),
		Events:   make([]EventRow, 0, len(r.Events)),
	}
	if len(r.Events) == 0 {
		return s
	}
	start := r.Events[0].At
	for _, e := range r.Events {
		s.Events = append(s.Events, e.Row(start))
	}
	return s
}
