// Package redis publishes error records on a Redis pub/sub channel.
//
// Pub/sub drops messages nobody is listening for, so the sink can also keep
// the most recent records of each session in a capped list under
// "<channel>:<session id>".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/framesync/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "framesync:errors"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 2 * time.Second

// DefaultHistoryTTL is how long a session's record list outlives its last write.
const DefaultHistoryTTL = 24 * time.Hour

// Config configures the Redis sink.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: framesync:errors).
	Channel string
	// Timeout is the per-publish timeout (default 2s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 0).
	Retries int
	// Keep is the per-session history length. Zero disables history.
	Keep int
	// HistoryTTL expires idle session histories (default 24h).
	HistoryTTL time.Duration
}

// Adapter publishes error records via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis sink from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis sink requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis sink: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Keep < 0 {
		return nil, fmt.Errorf("keep must be >= 0, got %d", cfg.Keep)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = DefaultHistoryTTL
	}

	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish broadcasts the record and, when history is enabled, records it
// in the same MULTI/EXEC so listeners and the history never disagree.
func (a *Adapter) Publish(ctx context.Context, record *adapter.ErrorRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis: marshal record: %w", err)
	}

	attempts := 1 + a.config.Retries
	var lastErr error
	for i := range attempts {
		if i > 0 {
			t := time.NewTimer(time.Duration(1<<uint(i-1)) * 250 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("redis: %w", ctx.Err())
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}

		lastErr = a.write(ctx, record.SessionID, body)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

func (a *Adapter) write(ctx context.Context, sessionID string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if a.config.Keep == 0 || sessionID == "" {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	}

	key := a.historyKey(sessionID)
	_, err := a.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Publish(ctx, a.config.Channel, body)
		p.LPush(ctx, key, body)
		p.LTrim(ctx, key, 0, int64(a.config.Keep-1))
		p.Expire(ctx, key, a.config.HistoryTTL)
		return nil
	})
	return err
}

// Recent returns the retained records of a session, newest first.
func (a *Adapter) Recent(ctx context.Context, sessionID string) ([]adapter.ErrorRecord, error) {
	raw, err := a.client.LRange(ctx, a.historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read history: %w", err)
	}
	out := make([]adapter.ErrorRecord, 0, len(raw))
	for _, s := range raw {
		var r adapter.ErrorRecord
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, fmt.Errorf("redis: decode history entry: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (a *Adapter) historyKey(sessionID string) string {
	return a.config.Channel + ":" + sessionID
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
