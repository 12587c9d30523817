package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framesync/cli/render"
	"github.com/pithecene-io/framesync/cli/tui"
	"github.com/pithecene-io/framesync/iox"
)

// NavlogCommand returns the navlog command, which prints a persisted
// navigation log. It only reads.
func NavlogCommand() *cli.Command {
	flags := append([]cli.Flag{ConfigFlag}, navigationFlags()...)
	return &cli.Command{
		Name:   "navlog",
		Usage:  "Print the navigation log of a browsing session",
		Flags:  append(flags, OutputFlags()...),
		Action: navlogAction,
	}
}

func navlogAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitConfigError)
	}
	navCfg := navigationConfig(c, cfg.Navigation)
	if navCfg.Backend == "" || navCfg.Backend == "memory" {
		return cli.Exit("navlog needs a persistent backend (file or redis)", exitConfigError)
	}

	nav, closer, err := buildNavLog(navCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("navigation log: %v", err), exitConfigError)
	}
	defer iox.DiscardClose(closer)

	entries, err := nav.Entries(context.Background())
	if err != nil {
		return fmt.Errorf("read navigation log: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewNavlog, entries)
	}
	return r.Render(entries)
}
