// Package cmd provides CLI commands for the framesync binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for host and navlog.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (host, navlog only)",
	}

	// ConfigFlag points at a framesync.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to framesync.yaml (flags override config values)",
		EnvVars: []string{"FRAMESYNC_CONFIG"},
	}
)

// OutputFlags returns the shared flags for commands that print results.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// navigationFlags select the navigation log backend. Shared by serve and navlog.
func navigationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "nav-backend",
			Usage: "Navigation log backend: memory, file or redis",
			Value: "memory",
		},
		&cli.StringFlag{
			Name:  "nav-path",
			Usage: "Directory for the file backend",
		},
		&cli.StringFlag{
			Name:    "nav-url",
			Usage:   "Redis URL for the redis backend",
			EnvVars: []string{"FRAMESYNC_NAV_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:  "nav-key",
			Usage: "Navigation log key, shared by every page load of one browsing session",
		},
		&cli.DurationFlag{
			Name:  "nav-ttl",
			Usage: "Redis key expiry after the last append",
		},
	}
}
