package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/types"
)

// DefaultSettleTimeout bounds each wait for a controller status.
const DefaultSettleTimeout = 10 * time.Second

// RunConfig configures a scripted host session.
type RunConfig struct {
	// Transport connects to an already running controller. When nil, a
	// child process is started from Process.
	Transport channel.Transport
	// Process configures the child controller.
	Process *ProcessConfig
	// Request is the content to load.
	Request types.RenderRequest
	// Resizes are container widths applied, in order, after the frame settles.
	Resizes []int
	// Quiet is how long to wait for a resize status before moving on.
	// Unchanged widths produce no status.
	Quiet time.Duration
	// Timeout bounds each wait for ready (default 10s).
	Timeout time.Duration
	// AckDelay is passed to the driver.
	AckDelay time.Duration
	OnEvent  func(Event)
	Logger   *log.Logger
}

// Result is the outcome of a scripted host session.
type Result struct {
	Outcome  *Outcome      `json:"outcome" yaml:"outcome"`
	Events   []Event       `json:"-" yaml:"-"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Stderr   string        `json:"-" yaml:"-"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Run loads content into a controller, lets it settle, applies resizes and
// unloads it.
//
// Execution flow:
//  1. Start child controller (unless a transport is given)
//  2. Read statuses (concurrent), auto-acknowledging ready
//  3. Wait for hello, send load, wait for ready or an error
//  4. Wait for the post-ack settle, apply resizes
//  5. Unload, close and wait for the child
//  6. Determine outcome
func Run(ctx context.Context, cfg *RunConfig) (*Result, error) {
	start := time.Now()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSettleTimeout
	}
	quiet := cfg.Quiet
	if quiet <= 0 {
		quiet = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	transport := cfg.Transport
	var proc *Process
	if transport == nil {
		if cfg.Process == nil {
			return nil, errors.New("host: either a transport or a process config is required")
		}
		proc = NewProcess(cfg.Process)
		if err := proc.Start(ctx); err != nil {
			return nil, err
		}
		transport = proc.Transport()
	}

	driver := NewDriver(transport, DriverConfig{
		AutoAck:  true,
		AckDelay: cfg.AckDelay,
		OnEvent:  cfg.OnEvent,
		Logger:   logger,
	})

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	readDone := make(chan error, 1)
	go func() { readDone <- driver.Run(readCtx) }()

	scriptErr := script(ctx, driver, cfg.Request, cfg.Resizes, timeout, quiet)
	if scriptErr != nil {
		logger.Warn("host script stopped", map[string]any{"error": scriptErr.Error()})
	}

	if err := driver.Unload(); err != nil {
		logger.Debug("unload not delivered", map[string]any{"error": err.Error()})
	}

	result := &Result{}
	if proc != nil {
		// The child exits after unload; its stdout EOF ends the reader.
		select {
		case <-readDone:
		case <-time.After(timeout):
			_ = proc.Kill()
			<-readDone
		}
		_ = driver.Close()
		pr, err := proc.Wait()
		if err != nil {
			return nil, err
		}
		result.ExitCode = pr.ExitCode
		result.Stderr = string(pr.StderrBytes)
	} else {
		select {
		case <-readDone:
		case <-time.After(quiet):
		}
		_ = driver.Close()
	}

	result.Events = driver.Events()
	result.Outcome = DetermineOutcome(result.ExitCode, result.Events)
	result.Duration = time.Since(start)
	return result, nil
}

func script(ctx context.Context, d *Driver, req types.RenderRequest, resizes []int, timeout, quiet time.Duration) error {
	wait := func(after int, want ...types.MessageType) (types.Message, int, error) {
		wctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return d.WaitFor(wctx, after, want...)
	}

	if _, _, err := wait(0, types.StatusHello); err != nil {
		return err
	}

	mark := len(d.Events())
	if err := d.Load(req); err != nil {
		return err
	}
	m, _, err := wait(mark, types.StatusReady, types.StatusError, types.StatusFatalError)
	if err != nil {
		return err
	}
	if m.Type != types.StatusReady {
		text, _ := m.Text(types.KeyError)
		return fmt.Errorf("host: load failed: %s", text)
	}

	// The ack and the corrective render produce no status.
	if err := sleep(ctx, quiet); err != nil {
		return err
	}

	for _, w := range resizes {
		mark := len(d.Events())
		if err := d.Resize(w); err != nil {
			return err
		}
		qctx, cancel := context.WithTimeout(ctx, quiet+timeout/10)
		_, _, err := d.WaitFor(qctx, mark, types.StatusResize, types.StatusError)
		cancel()
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
