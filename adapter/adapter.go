// Package adapter defines the error-telemetry sink boundary.
//
// Sinks receive one ErrorRecord per reported failure. Delivery is best
// effort: the reporter logs a failed Publish and moves on.
package adapter

import (
	"context"

	"github.com/pithecene-io/framesync/types"
)

// ErrorRecord is the JSON document delivered to a telemetry sink.
type ErrorRecord struct {
	ID              string `json:"id"`
	SessionID       string `json:"sessionId"`
	Message         string `json:"message"`
	Stack           string `json:"stack"`
	ExceptionDetail string `json:"exceptionDetail"`
	Fatal           bool   `json:"fatal,omitempty"`
	URL             string `json:"url"`
	Referrer        string `json:"referrer,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	// TimeSinceLoad is milliseconds between session start and the failure.
	TimeSinceLoad    int64                   `json:"timeSinceLoad"`
	ExtensionScripts []string                `json:"extensionScripts"`
	Navigations      []types.NavigationEntry `json:"navigations"`
	Logging          []string                `json:"logging"`
}

// Adapter publishes error records to a downstream system.
type Adapter interface {
	// Publish delivers one record.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, record *ErrorRecord) error

	// Close releases adapter resources.
	Close() error
}
