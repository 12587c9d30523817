// Package session holds the per-page-load context shared by the controller,
// the resize reactor and the error reporter: identity, load time, the
// unloading flag, diagnostic inventories and teardown hooks.
//
// A Session is constructed once at startup and torn down once on unload.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/navlog"
	"github.com/pithecene-io/framesync/types"
)

// ExtensionSchemes are URL schemes used by browser extension scripts.
var ExtensionSchemes = []string{
	"chrome-extension://",
	"moz-extension://",
	"safari-extension://",
	"safari-web-extension://",
}

// IsExtensionURL reports whether s contains an extension script reference.
func IsExtensionURL(s string) bool {
	for _, scheme := range ExtensionSchemes {
		if strings.Contains(s, scheme) {
			return true
		}
	}
	return false
}

// Config configures a Session.
type Config struct {
	// ID overrides the generated session ID.
	ID string
	// URL is the document URL.
	URL string
	// Referrer is the embedding page URL.
	Referrer string
	// Scripts is the inventory of scripts loaded into the document.
	Scripts []string
	// NavLog receives load and unload entries. Nil uses an in-memory log.
	NavLog *navlog.Log
	// DebugBuffer keeps the sampled tail of log output. Nil allocates one.
	DebugBuffer *log.DebugBuffer
	// Now overrides the clock.
	Now func() time.Time
}

// Session is the page session context.
type Session struct {
	meta     types.SessionMeta
	scripts  []string
	navlog   *navlog.Log
	debug    *log.DebugBuffer
	now      func() time.Time
	loadedAt time.Time

	unloading atomic.Bool

	mu       sync.Mutex
	teardown []func() error
	closed   bool
}

// New creates a Session and stamps its load time.
func New(cfg Config) *Session {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	nl := cfg.NavLog
	if nl == nil {
		nl = navlog.New(navlog.NewMemoryStore())
	}
	buf := cfg.DebugBuffer
	if buf == nil {
		buf = log.NewDebugBuffer(0)
	}
	return &Session{
		meta:     types.SessionMeta{SessionID: id, URL: cfg.URL, Referrer: cfg.Referrer},
		scripts:  append([]string(nil), cfg.Scripts...),
		navlog:   nl,
		debug:    buf,
		now:      now,
		loadedAt: now(),
	}
}

// Meta returns the session identity.
func (s *Session) Meta() types.SessionMeta { return s.meta }

// ID returns the session ID.
func (s *Session) ID() string { return s.meta.SessionID }

// NavLog returns the navigation log.
func (s *Session) NavLog() *navlog.Log { return s.navlog }

// DebugBuffer returns the sampled debug-log buffer.
func (s *Session) DebugBuffer() *log.DebugBuffer { return s.debug }

// LoadedAt returns the time the session started.
func (s *Session) LoadedAt() time.Time { return s.loadedAt }

// Now returns the session clock's current time.
func (s *Session) Now() time.Time { return s.now() }

// SinceLoad returns the time elapsed since the session started.
func (s *Session) SinceLoad() time.Duration { return s.now().Sub(s.loadedAt) }

// ExtensionScripts returns the loaded scripts that belong to browser extensions.
func (s *Session) ExtensionScripts() []string {
	var out []string
	for _, src := range s.scripts {
		if IsExtensionURL(src) {
			out = append(out, src)
		}
	}
	return out
}

// Unloading reports whether the page is being torn down.
func (s *Session) Unloading() bool { return s.unloading.Load() }

// Start records the page load in the navigation log.
func (s *Session) Start(ctx context.Context) error {
	return s.navlog.Append(ctx, types.NavigationEntry{
		Type: types.NavigationLoad,
		URL:  s.meta.URL,
		Info: s.meta.Referrer,
	})
}

// Navigate records an in-page navigation.
func (s *Session) Navigate(ctx context.Context, url, state string) error {
	return s.navlog.Append(ctx, types.NavigationEntry{
		Type:  types.NavigationNavigate,
		URL:   url,
		State: state,
	})
}

// OnTeardown registers fn to run on Unload. Hooks run in reverse
// registration order.
func (s *Session) OnTeardown(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown = append(s.teardown, fn)
}

// Unload marks the session as unloading, records the unload and runs the
// teardown hooks. Only the first call has any effect.
func (s *Session) Unload(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hooks := s.teardown
	s.teardown = nil
	s.mu.Unlock()

	s.unloading.Store(true)

	var errs []error
	if err := s.navlog.Append(ctx, types.NavigationEntry{Type: types.NavigationUnload, URL: s.meta.URL}); err != nil {
		errs = append(errs, err)
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
