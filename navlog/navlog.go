// Package navlog persists the session's navigation history.
//
// The log is a JSON array stored under a single key. Every append reads the
// whole array and rewrites it; there is no incremental patching and no cap
// beyond what the backing store imposes. The log is diagnostic context for
// error reports and is never consulted for control flow.
package navlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/framesync/types"
)

// DefaultKey is the storage key holding the navigation array.
const DefaultKey = "framesync:navigations"

// ErrNotFound is returned by stores when the key does not exist.
var ErrNotFound = errors.New("navlog: key not found")

// Store is a minimal key/value store scoped to one browsing session.
type Store interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the stored value.
	Set(ctx context.Context, key string, value []byte) error
}

// Log appends navigation entries to a Store.
type Log struct {
	mu    sync.Mutex
	store Store
	key   string
}

// New creates a Log over store using DefaultKey.
func New(store Store) *Log {
	return NewWithKey(store, DefaultKey)
}

// NewWithKey creates a Log over store using key.
func NewWithKey(store Store, key string) *Log {
	return &Log{store: store, key: key}
}

// Append adds entry to the end of the log.
func (l *Log) Append(ctx context.Context, entry types.NavigationEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("navlog: marshal: %w", err)
	}
	if err := l.store.Set(ctx, l.key, body); err != nil {
		return fmt.Errorf("navlog: write: %w", err)
	}
	return nil
}

// Entries returns the full log in append order. A missing key yields an
// empty log.
func (l *Log) Entries(ctx context.Context) ([]types.NavigationEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(ctx)
}

func (l *Log) read(ctx context.Context) ([]types.NavigationEntry, error) {
	raw, err := l.store.Get(ctx, l.key)
	if errors.Is(err, ErrNotFound) {
		return []types.NavigationEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("navlog: read: %w", err)
	}
	var entries []types.NavigationEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		// A corrupt value is diagnostic data only; start over.
		return []types.NavigationEntry{}, nil
	}
	return entries, nil
}
