package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents a framesync.yaml configuration file.
// All values are optional and act as defaults for framesync flags.
// CLI flags always override config values.
type Config struct {
	Transport    string           `yaml:"transport"`
	WebSocketURL string           `yaml:"websocket_url"`
	Debounce     Duration         `yaml:"debounce"`
	HelpURL      string           `yaml:"help_url"`
	Renderer     string           `yaml:"renderer"`
	MetricsAddr  string           `yaml:"metrics_addr"`
	Telemetry    TelemetryConfig  `yaml:"telemetry"`
	Navigation   NavigationConfig `yaml:"navigation"`
	Session      SessionConfig    `yaml:"session"`
}

// TelemetryConfig selects and configures the error telemetry sink.
type TelemetryConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	Cap     int               `yaml:"cap,omitempty"`
	// Keep is the per-session history length for the redis sink.
	Keep int `yaml:"keep,omitempty"`

	// Lode archive sink: Path for filesystem storage, Bucket for S3.
	Path    string `yaml:"path,omitempty"`
	Dataset string `yaml:"dataset,omitempty"`

	// S3 object and Lode archive sinks
	Bucket      string `yaml:"bucket,omitempty"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// NavigationConfig selects the navigation log backend.
type NavigationConfig struct {
	Backend string   `yaml:"backend"`
	Path    string   `yaml:"path"`
	URL     string   `yaml:"url"`
	Key     string   `yaml:"key"`
	TTL     Duration `yaml:"ttl"`
}

// SessionConfig describes the document the controller serves.
type SessionConfig struct {
	URL      string   `yaml:"url"`
	Referrer string   `yaml:"referrer"`
	Scripts  []string `yaml:"scripts"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "200ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "200ms" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values. Empty values are allowed and take
// the command's defaults.
func (c *Config) Validate() error {
	var errs []error
	if !oneOf(c.Transport, "", "stdio", "websocket", "loopback") {
		errs = append(errs, fmt.Errorf("transport: unknown value %q", c.Transport))
	}
	if c.Transport == "websocket" && c.WebSocketURL == "" {
		errs = append(errs, errors.New("websocket_url is required for the websocket transport"))
	}
	if !oneOf(c.Renderer, "", "auto", "svg", "html", "geo") {
		errs = append(errs, fmt.Errorf("renderer: unknown value %q", c.Renderer))
	}
	if c.Debounce.Duration < 0 {
		errs = append(errs, fmt.Errorf("debounce must be >= 0, got %v", c.Debounce.Duration))
	}
	if !oneOf(c.Telemetry.Type, "", "none", "webhook", "redis", "s3", "lode") {
		errs = append(errs, fmt.Errorf("telemetry.type: unknown value %q", c.Telemetry.Type))
	}
	if c.Telemetry.Keep < 0 {
		errs = append(errs, fmt.Errorf("telemetry.keep must be >= 0, got %d", c.Telemetry.Keep))
	}
	if !oneOf(c.Navigation.Backend, "", "memory", "file", "redis") {
		errs = append(errs, fmt.Errorf("navigation.backend: unknown value %q", c.Navigation.Backend))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
