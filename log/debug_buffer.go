package log

import (
	"strings"
	"sync"
)

// DefaultDebugBufferSize is the number of log lines kept when no size is given.
const DefaultDebugBufferSize = 200

// DebugBuffer is a bounded ring of recent log lines. It implements io.Writer;
// zap writes exactly one encoded entry per Write call.
type DebugBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewDebugBuffer creates a ring holding at most size lines.
func NewDebugBuffer(size int) *DebugBuffer {
	if size <= 0 {
		size = DefaultDebugBufferSize
	}
	return &DebugBuffer{lines: make([]string, size)}
}

// Write stores p as one line, evicting the oldest line when full.
func (b *DebugBuffer) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")

	b.mu.Lock()
	b.lines[b.next] = line
	b.next++
	if b.next == len(b.lines) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (b *DebugBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]string, b.next)
		copy(out, b.lines[:b.next])
		return out
	}
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	out = append(out, b.lines[:b.next]...)
	return out
}

// Len returns the number of buffered lines.
func (b *DebugBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.lines)
	}
	return b.next
}
