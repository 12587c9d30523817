package host

import (
	"fmt"

	"github.com/pithecene-io/framesync/types"
)

// OutcomeStatus classifies how a hosted frame ended.
type OutcomeStatus string

// Outcome statuses.
const (
	// OutcomeSettled: content was announced ready and no later error arrived.
	OutcomeSettled OutcomeStatus = "settled"
	// OutcomeFailed: the controller reported a render failure.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeFatal: the controller reported an unhandled fault.
	OutcomeFatal OutcomeStatus = "fatal"
	// OutcomeCrashed: the controller exited abnormally before ready.
	OutcomeCrashed OutcomeStatus = "crashed"
	// OutcomeIncomplete: the controller never announced ready.
	OutcomeIncomplete OutcomeStatus = "incomplete"
)

// Outcome summarizes a hosted frame.
type Outcome struct {
	Status  OutcomeStatus `json:"status" yaml:"status"`
	Message string        `json:"message" yaml:"message"`
	Height  int           `json:"height" yaml:"height"`
}

// DetermineOutcome derives the outcome from the child's exit code and the
// recorded events. Pass exit code 0 for in-process frames.
//
// Precedence:
//  1. fatalError anywhere
//  2. error after the last ready (or with no ready at all)
//  3. ready seen: settled
//  4. non-zero exit: crashed
//  5. otherwise incomplete
func DetermineOutcome(exitCode int, events []Event) *Outcome {
	var (
		ready     bool
		height    int
		lastError string
		fatal     string
		hasFatal  bool
		errAfter  bool
	)
	for _, e := range events {
		if e.Direction != Inbound {
			continue
		}
		m := e.Message
		switch m.Type {
		case types.StatusReady:
			ready = true
			errAfter = false
			height, _ = m.Int(types.KeyHeight)
		case types.StatusResize:
			height, _ = m.Int(types.KeyHeight)
		case types.StatusError:
			lastError, _ = m.Text(types.KeyError)
			errAfter = true
		case types.StatusFatalError:
			fatal, _ = m.Text(types.KeyError)
			hasFatal = true
		}
	}

	switch {
	case hasFatal:
		return &Outcome{Status: OutcomeFatal, Message: fatal, Height: height}
	case errAfter:
		return &Outcome{Status: OutcomeFailed, Message: lastError, Height: height}
	case ready:
		return &Outcome{Status: OutcomeSettled, Message: "content settled", Height: height}
	case exitCode != 0:
		return &Outcome{Status: OutcomeCrashed, Message: fmt.Sprintf("controller exited with code %d", exitCode)}
	default:
		return &Outcome{Status: OutcomeIncomplete, Message: "controller never announced ready"}
	}
}
