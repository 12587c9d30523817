// Package webhook delivers error records as JSON HTTP POSTs.
//
// Each request carries the record ID in an Idempotency-Key header so a
// collector can drop duplicates produced by retries. Delivery is attempted
// once by default.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pithecene-io/framesync/adapter"
	"github.com/pithecene-io/framesync/iox"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 0

// MaxRetryAfter bounds how long a Retry-After header may stall delivery.
const MaxRetryAfter = 5 * time.Second

const (
	headerIdempotency = "Idempotency-Key"
	headerSession     = "X-Framesync-Session"
	headerFatal       = "X-Framesync-Fatal"
)

// Config configures the webhook sink.
type Config struct {
	// URL is the collector endpoint (required).
	URL string
	// Headers are added to every request, after the framesync headers.
	Headers map[string]string
	// Timeout is the per-request timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of extra attempts on 5xx, 429 or network errors.
	Retries int
}

// Adapter publishes error records via HTTP POST.
type Adapter struct {
	config Config
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a webhook sink from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook sink requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sleep:  sleepCtx,
	}, nil
}

// Publish sends the record. A 413 response triggers one re-send with the
// log lines and navigation history stripped.
func (a *Adapter) Publish(ctx context.Context, record *adapter.ErrorRecord) error {
	err := a.deliver(ctx, record)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusRequestEntityTooLarge && !trimmed(record) {
		slim := *record
		slim.Logging = nil
		slim.Navigations = nil
		return a.deliver(ctx, &slim)
	}
	return err
}

func (a *Adapter) deliver(ctx context.Context, record *adapter.ErrorRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("webhook: marshal record: %w", err)
	}

	var wait time.Duration
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := a.sleep(ctx, wait); err != nil {
				return fmt.Errorf("webhook: %w", err)
			}
		}

		err = a.post(ctx, record, body)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("webhook: %w", ctx.Err())
		}
		if attempt >= a.config.Retries || !retriable(err) {
			return fmt.Errorf("webhook: attempt %d of %d: %w", attempt+1, a.config.Retries+1, err)
		}
		wait = backoff(attempt, err)
	}
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func (a *Adapter) post(ctx context.Context, record *adapter.ErrorRecord, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if record.ID != "" {
		req.Header.Set(headerIdempotency, record.ID)
	}
	if record.SessionID != "" {
		req.Header.Set(headerSession, record.SessionID)
	}
	if record.Fatal {
		req.Header.Set(headerFatal, "1")
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{
		Code:       resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func retriable(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return true
	}
	return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
}

// backoff doubles from 250ms, unless the collector asked for a specific delay.
func backoff(attempt int, err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter
	}
	return time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
}

// parseRetryAfter accepts the delay-seconds form only.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, MaxRetryAfter)
}

func trimmed(r *adapter.ErrorRecord) bool {
	return len(r.Logging) == 0 && len(r.Navigations) == 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ adapter.Adapter = (*Adapter)(nil)
