package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pithecene-io/framesync/channel"
)

// ProcessConfig configures a child controller process.
type ProcessConfig struct {
	// Path is the framesync binary (default: the running executable).
	Path string
	// Args are passed after "serve --transport stdio".
	Args []string
	// Env entries are appended to the inherited environment.
	// Later entries win over inherited duplicates.
	Env []string
}

// ProcessResult is the outcome of a child process.
type ProcessResult struct {
	// ExitCode is the process exit code.
	ExitCode int
	// StderrBytes is the captured stderr output (the child's log stream).
	StderrBytes []byte
}

// Process runs an embedded controller as a child process and exposes its
// stdio as a frame transport.
type Process struct {
	config    *ProcessConfig
	cmd       *exec.Cmd
	transport *channel.StreamTransport
	stderr    io.ReadCloser
}

// NewProcess creates a process manager.
func NewProcess(config *ProcessConfig) *Process {
	return &Process{config: config}
}

// Start launches the child. Stdin and stdout carry frames; stderr carries
// the child's logs.
func (p *Process) Start(ctx context.Context) error {
	path := p.config.Path
	if path == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate framesync binary: %w", err)
		}
		path = self
	}

	args := append([]string{"serve", "--transport", "stdio"}, p.config.Args...)
	p.cmd = exec.CommandContext(ctx, path, args...)
	if len(p.config.Env) > 0 {
		p.cmd.Env = deduplicateEnv(append(os.Environ(), p.config.Env...))
	}

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	p.stderr = stderr

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}

	p.transport = channel.NewStreamTransport(stdout, stdin)
	return nil
}

// Transport returns the frame transport to the child. Valid after Start.
func (p *Process) Transport() channel.Transport {
	return p.transport
}

// Stderr returns the child's log stream.
func (p *Process) Stderr() io.Reader {
	return p.stderr
}

// Wait waits for the child to exit. Must be called after Start, and after
// the caller is done reading the transport.
func (p *Process) Wait() (*ProcessResult, error) {
	if p.cmd == nil {
		return nil, errors.New("controller process not started")
	}

	stderrBytes, _ := io.ReadAll(p.stderr)
	err := p.cmd.Wait()

	result := &ProcessResult{StderrBytes: stderrBytes}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("controller wait failed: %w", err)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = -1
		}
	}
	return result, nil
}

// Kill terminates the child.
func (p *Process) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
