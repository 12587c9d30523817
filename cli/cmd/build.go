package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framesync/adapter"
	"github.com/pithecene-io/framesync/adapter/lode"
	"github.com/pithecene-io/framesync/adapter/redis"
	"github.com/pithecene-io/framesync/adapter/s3"
	"github.com/pithecene-io/framesync/adapter/webhook"
	"github.com/pithecene-io/framesync/cli/config"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/navlog"
	"github.com/pithecene-io/framesync/renderer"
)

// loadConfig reads --config when given. A missing flag yields an empty
// config so flag defaults apply.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// stringOpt returns the flag value when the flag was set explicitly,
// otherwise the config value, otherwise the flag default.
func stringOpt(c *cli.Context, flag, fromConfig string) string {
	if c.IsSet(flag) || fromConfig == "" {
		return c.String(flag)
	}
	return fromConfig
}

func durationOpt(c *cli.Context, flag string, fromConfig config.Duration) time.Duration {
	if c.IsSet(flag) || fromConfig.Duration == 0 {
		return c.Duration(flag)
	}
	return fromConfig.Duration
}

// buildSink creates the telemetry sink. Type "" and "none" disable telemetry.
func buildSink(ctx context.Context, cfg config.TelemetryConfig) (adapter.Adapter, error) {
	retries := 0
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
			Keep:    cfg.Keep,
		})
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
			Timeout:      cfg.Timeout.Duration,
		})
	case "lode":
		lodeCfg := lode.Config{Dataset: cfg.Dataset, Timeout: cfg.Timeout.Duration}
		if cfg.Bucket != "" {
			return lode.NewS3(ctx, lodeCfg, lode.S3Config{
				Bucket:       cfg.Bucket,
				Prefix:       cfg.Prefix,
				Region:       cfg.Region,
				Endpoint:     cfg.Endpoint,
				UsePathStyle: cfg.S3PathStyle,
			})
		}
		return lode.NewFS(lodeCfg, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown telemetry type: %s (must be none, webhook, redis, s3 or lode)", cfg.Type)
	}
}

// buildNavLog opens the navigation log. The returned closer releases the
// backing store.
func buildNavLog(cfg config.NavigationConfig) (*navlog.Log, io.Closer, error) {
	key := cfg.Key
	if key == "" {
		key = navlog.DefaultKey
	}

	switch cfg.Backend {
	case "", "memory":
		return navlog.NewWithKey(navlog.NewMemoryStore(), key), nopCloser{}, nil
	case "file":
		if cfg.Path == "" {
			return nil, nil, errors.New("file navigation backend requires a path")
		}
		store, err := navlog.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return navlog.NewWithKey(store, key), nopCloser{}, nil
	case "redis":
		store, err := navlog.NewRedisStore(navlog.RedisConfig{URL: cfg.URL, TTL: cfg.TTL.Duration})
		if err != nil {
			return nil, nil, err
		}
		return navlog.NewWithKey(store, key), store, nil
	default:
		return nil, nil, fmt.Errorf("unknown navigation backend: %s (must be memory, file or redis)", cfg.Backend)
	}
}

// navigationConfig merges navigation flags over the config file.
func navigationConfig(c *cli.Context, fromFile config.NavigationConfig) config.NavigationConfig {
	return config.NavigationConfig{
		Backend: stringOpt(c, "nav-backend", fromFile.Backend),
		Path:    stringOpt(c, "nav-path", fromFile.Path),
		URL:     stringOpt(c, "nav-url", fromFile.URL),
		Key:     stringOpt(c, "nav-key", fromFile.Key),
		TTL:     config.Duration{Duration: durationOpt(c, "nav-ttl", fromFile.TTL)},
	}
}

// buildBuilder selects the renderer builder. "auto" sniffs each load.
func buildBuilder(kind string) (renderer.Builder, error) {
	auto := renderer.NewAuto()
	if kind == "" || kind == "auto" {
		return auto, nil
	}
	return auto.ForKind(kind)
}

// serveMetrics exposes the collector on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, c *metrics.Collector, logger *log.Logger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewExporter(c))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", map[string]any{"addr": addr, "error": err.Error()})
		}
	}()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
