package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/cli/render"
	"github.com/pithecene-io/framesync/cli/tui"
	"github.com/pithecene-io/framesync/host"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/types"
)

// Exit codes for host, one per outcome.
const (
	exitSettled    = 0
	exitFailed     = 1
	exitFatal      = 2
	exitCrashed    = 3
	exitIncomplete = 4
)

// HostCommand returns the host command, which plays the embedding page
// against a controller: it loads content, acknowledges readiness, applies
// resizes and reports how the frame ended.
func HostCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "content",
			Usage:    "File to load into the controller",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "kind",
			Usage: "Content kind: svg, html or geo (default: sniffed)",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Initial container width",
			Value: 600,
		},
		&cli.IntSliceFlag{
			Name:  "resize",
			Usage: "Container widths applied in order after the frame settles",
		},
		&cli.DurationFlag{
			Name:  "quiet",
			Usage: "Wait after each step for statuses to arrive",
			Value: 500 * time.Millisecond,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Bound on each wait for ready",
			Value: host.DefaultSettleTimeout,
		},
		&cli.DurationFlag{
			Name:  "ack-delay",
			Usage: "Simulated host repaint time before acknowledging ready",
		},
		&cli.StringFlag{
			Name:  "binary",
			Usage: "Controller binary (default: this executable)",
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "Wait for a websocket controller on this address instead of spawning one",
		},
		&cli.IntFlag{
			Name:  "step",
			Usage: "Width change per arrow key (--tui)",
			Value: 50,
		},
		&cli.BoolFlag{
			Name:  "quiet-output",
			Usage: "Suppress the result report",
		},
	}
	return &cli.Command{
		Name:      "host",
		Usage:     "Drive a controller the way an embedding page does",
		ArgsUsage: "[-- serve flags passed to the spawned controller]",
		Flags:     append(flags, OutputFlags()...),
		Action:    hostAction,
	}
}

func hostAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	data, err := os.ReadFile(c.String("content"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("read content: %v", err), exitConfigError)
	}
	req := types.RenderRequest{
		Data:  string(data),
		Width: c.Int("width"),
		Kind:  c.String("kind"),
	}
	if req.Width <= 0 {
		return cli.Exit("--width must be positive", exitConfigError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.NewLogger(nil)
	proc := &host.ProcessConfig{Path: c.String("binary"), Args: c.Args().Slice()}

	var result *host.Result
	if c.Bool("tui") {
		if c.String("listen") != "" {
			return cli.Exit("--tui cannot be combined with --listen", exitConfigError)
		}
		result, err = runMonitor(ctx, proc, req, c.Int("step"), c.Duration("timeout"), logger)
	} else {
		cfg := &host.RunConfig{
			Process:  proc,
			Request:  req,
			Resizes:  c.IntSlice("resize"),
			Quiet:    c.Duration("quiet"),
			Timeout:  c.Duration("timeout"),
			AckDelay: c.Duration("ack-delay"),
			Logger:   logger,
		}
		if addr := c.String("listen"); addr != "" {
			t, err := acceptController(ctx, addr, cfg.Timeout, logger)
			if err != nil {
				return cli.Exit(err.Error(), exitIncomplete)
			}
			cfg.Transport = t
		}
		result, err = host.Run(ctx, cfg)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("host failed: %v", err), exitCrashed)
	}

	if !c.Bool("quiet-output") {
		if err := r.Render(result.Summary()); err != nil {
			return err
		}
	}
	return cli.Exit("", outcomeToExitCode(result.Outcome.Status))
}

func outcomeToExitCode(status host.OutcomeStatus) int {
	switch status {
	case host.OutcomeSettled:
		return exitSettled
	case host.OutcomeFailed:
		return exitFailed
	case host.OutcomeFatal:
		return exitFatal
	case host.OutcomeCrashed:
		return exitCrashed
	default:
		return exitIncomplete
	}
}

// acceptController serves a websocket endpoint on addr and returns the
// first controller that connects to it.
func acceptController(ctx context.Context, addr string, timeout time.Duration, logger *log.Logger) (channel.Transport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	accepted := make(chan channel.Transport, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := channel.UpgradeWebSocket(w, r)
			if err != nil {
				logger.Warn("controller upgrade failed", map[string]any{"error": err.Error()})
				return
			}
			select {
			case accepted <- t:
			default:
				// One controller per host session.
				_ = t.Close()
			}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	logger.Info("waiting for controller", map[string]any{"addr": ln.Addr().String()})

	select {
	case t := <-accepted:
		// Hijacked connections outlive Close.
		_ = srv.Close()
		return t, nil
	case <-time.After(timeout):
		_ = srv.Close()
		return nil, errors.New("no controller connected")
	case <-ctx.Done():
		_ = srv.Close()
		return nil, ctx.Err()
	}
}

// runMonitor spawns a controller, loads req and hands the session to the
// interactive monitor until the user quits.
func runMonitor(ctx context.Context, cfg *host.ProcessConfig, req types.RenderRequest, step int, timeout time.Duration, logger *log.Logger) (*host.Result, error) {
	start := time.Now()
	proc := host.NewProcess(cfg)
	if err := proc.Start(ctx); err != nil {
		return nil, err
	}

	var mon *tui.Monitor
	d := host.NewDriver(proc.Transport(), host.DriverConfig{
		AutoAck: true,
		OnEvent: func(e host.Event) { mon.Observe(e) },
		Logger:  logger,
	})
	mon = tui.NewMonitor(d, step)

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	readDone := make(chan error, 1)
	go func() { readDone <- d.Run(readCtx) }()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	_, _, err := d.WaitFor(waitCtx, 0, types.StatusHello)
	cancel()
	if err == nil {
		err = d.Load(req)
	}
	if err == nil {
		err = mon.Run()
	}
	if err != nil {
		logger.Warn("monitor stopped", map[string]any{"error": err.Error()})
	}

	_ = d.Unload()
	select {
	case <-readDone:
	case <-time.After(timeout):
		_ = proc.Kill()
		<-readDone
	}
	_ = d.Close()

	pr, err := proc.Wait()
	if err != nil {
		return nil, err
	}
	events := d.Events()
	return &host.Result{
		Outcome:  host.DetermineOutcome(pr.ExitCode, events),
		Events:   events,
		ExitCode: pr.ExitCode,
		Stderr:   string(pr.StderrBytes),
		Duration: time.Since(start),
	}, nil
}
