// bidreview - construction bid reconciliation
//
// Usage:
//
//	bidreview reconcile --required rfp.json --proposed bid.xlsx
//	bidreview compare --proposal bid.xlsx --plan C-101.xlsx --plan C-102.xlsx
//	bidreview analyze --required rfp.json --proposed bid.xlsx --findings ai.json
//	bidreview serve
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"bid-review/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "bidreview",
		Usage:   "Reconcile construction bid proposals against RFP requirements and plan quantities",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "bidreview.toml",
				Usage:   "Path to TOML configuration file",
				EnvVars: []string{"BIDREVIEW_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"BIDREVIEW_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-pretty",
				Usage:   "Human-readable console logs",
				EnvVars: []string{"BIDREVIEW_LOG_PRETTY"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json, markdown)",
				EnvVars: []string{"BIDREVIEW_FORMAT"},
			},
		},

		Commands: []*cli.Command{
			reconcileCommand(),
			compareCommand(),
			aggregateCommand(),
			analyzeCommand(),
			extractCommand(),
			historyCommand(),
			serveCommand(),
			versionCommand(),
		},
	}
}

// loadConfig reads the configuration file and applies global flag overrides.
func loadConfig(c *cli.Context) (*platform.Config, error) {
	cfg, err := platform.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-pretty") {
		cfg.Log.Pretty = c.Bool("log-pretty")
	}
	platform.InitLogger(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "bidreview %s\n", c.App.Version)
			return nil
		},
	}
}
