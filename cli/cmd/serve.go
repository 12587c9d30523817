package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/cli/config"
	"github.com/pithecene-io/framesync/iox"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/runtime"
	"github.com/pithecene-io/framesync/session"
	"github.com/pithecene-io/framesync/types"
)

// Exit codes for serve.
const (
	exitSuccess      = 0
	exitRunError     = 1
	exitConfigError  = 2
	exitSetupFailure = 3
)

// ServeCommand returns the serve command, which runs one embedded
// controller until the host unloads it.
func ServeCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "transport",
			Usage: "Host transport: stdio, websocket or loopback",
			Value: "stdio",
		},
		&cli.StringFlag{
			Name:  "websocket-url",
			Usage: "Host endpoint for the websocket transport",
		},
		&cli.StringFlag{
			Name:  "content",
			Usage: "File rendered on start (loopback only)",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Container width for --content (loopback only)",
			Value: 600,
		},
		&cli.StringFlag{
			Name:  "renderer",
			Usage: "Content builder: auto, svg, html or geo",
			Value: "auto",
		},
		&cli.DurationFlag{
			Name:  "debounce",
			Usage: "Resize settling window",
		},
		&cli.StringFlag{
			Name:  "help-url",
			Usage: "Issue tracker URL appended to user-visible errors",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
		},
		&cli.StringFlag{
			Name:  "telemetry-type",
			Usage: "Error telemetry sink: none, webhook, redis, s3 or lode",
		},
		&cli.StringFlag{
			Name:    "telemetry-url",
			Usage:   "Webhook or Redis URL for the telemetry sink",
			EnvVars: []string{"FRAMESYNC_TELEMETRY_URL"},
		},
		&cli.StringFlag{
			Name:  "session-url",
			Usage: "URL of the served document, recorded in telemetry",
		},
		&cli.StringFlag{
			Name:  "referrer",
			Usage: "URL of the embedding page, recorded in telemetry",
		},
	}
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run an embedded rendering controller",
		Flags:  append(flags, navigationFlags()...),
		Action: serveAction,
	}
}

// serveOptions is the resolved serve configuration.
type serveOptions struct {
	transport    string
	websocketURL string
	content      string
	width        int
	renderer     string
	cfg          *config.Config
}

func resolveServeOptions(c *cli.Context) (*serveOptions, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	// Flags override file values in place so the rest of serve reads one config.
	cfg.Transport = stringOpt(c, "transport", cfg.Transport)
	cfg.WebSocketURL = stringOpt(c, "websocket-url", cfg.WebSocketURL)
	cfg.Renderer = stringOpt(c, "renderer", cfg.Renderer)
	cfg.Debounce = config.Duration{Duration: durationOpt(c, "debounce", cfg.Debounce)}
	cfg.HelpURL = stringOpt(c, "help-url", cfg.HelpURL)
	cfg.MetricsAddr = stringOpt(c, "metrics-addr", cfg.MetricsAddr)
	cfg.Telemetry.Type = stringOpt(c, "telemetry-type", cfg.Telemetry.Type)
	cfg.Telemetry.URL = stringOpt(c, "telemetry-url", cfg.Telemetry.URL)
	cfg.Session.URL = stringOpt(c, "session-url", cfg.Session.URL)
	cfg.Session.Referrer = stringOpt(c, "referrer", cfg.Session.Referrer)
	cfg.Navigation = navigationConfig(c, cfg.Navigation)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &serveOptions{
		transport:    cfg.Transport,
		websocketURL: cfg.WebSocketURL,
		content:      c.String("content"),
		width:        c.Int("width"),
		renderer:     cfg.Renderer,
		cfg:          cfg,
	}
	if opts.content != "" && opts.transport != "loopback" {
		return nil, errors.New("--content is only valid with --transport loopback")
	}
	return opts, nil
}

func serveAction(c *cli.Context) error {
	opts, err := resolveServeOptions(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitConfigError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f, cleanup, err := buildFrame(ctx, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("setup failed: %v", err), exitSetupFailure)
	}
	defer cleanup()

	if err := f.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("controller stopped: %v", err), exitRunError)
	}
	return cli.Exit("", exitSuccess)
}

// buildFrame assembles the frame and everything it depends on. The returned
// cleanup releases stores that outlive the frame's own teardown.
func buildFrame(ctx context.Context, opts *serveOptions) (*runtime.Frame, func(), error) {
	cfg := opts.cfg

	builder, err := buildBuilder(opts.renderer)
	if err != nil {
		return nil, nil, err
	}

	nav, navCloser, err := buildNavLog(cfg.Navigation)
	if err != nil {
		return nil, nil, fmt.Errorf("navigation log: %w", err)
	}
	cleanup := iox.CloseFunc(navCloser)

	sess := session.New(session.Config{
		URL:      cfg.Session.URL,
		Referrer: cfg.Session.Referrer,
		Scripts:  cfg.Session.Scripts,
		NavLog:   nav,
	})
	meta := sess.Meta()
	logger := log.NewLogger(&meta)

	sink, err := buildSink(ctx, cfg.Telemetry)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("telemetry: %w", err)
	}

	var parent channel.Transport
	switch opts.transport {
	case "stdio":
		parent = channel.NewStreamTransport(os.Stdin, os.Stdout)
	case "websocket":
		ws, err := channel.DialWebSocket(ctx, opts.websocketURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		parent = ws
	case "loopback":
	}

	sinkName := cfg.Telemetry.Type
	if sinkName == "" {
		sinkName = "none"
	}
	collector := metrics.NewCollector(opts.transport, sinkName, sess.ID())
	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr, collector, logger)
	}

	f := runtime.NewFrame(ctx, &runtime.FrameConfig{
		Parent:       parent,
		Builder:      builder,
		Session:      sess,
		Sink:         sink,
		HelpURL:      cfg.HelpURL,
		TelemetryCap: cfg.Telemetry.Cap,
		Debounce:     cfg.Debounce.Duration,
		SelfAck:      opts.transport == "loopback",
		Collector:    collector,
		Logger:       logger,
	})

	if opts.content != "" {
		data, err := os.ReadFile(opts.content)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("read content: %w", err)
		}
		req := types.RenderRequest{Data: string(data), Width: opts.width}
		// The controller says hello once its handlers are registered.
		f.Bus().OnReceive(types.StatusHello, func(types.Message) error {
			f.Bus().Send(types.MessageLoad, types.LoadMessage(req).Payload)
			return nil
		})
	}

	return f, cleanup, nil
}
