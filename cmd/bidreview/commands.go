package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"bid-review/db/clickhouse"
	"bid-review/decision/analysis"
	"bid-review/decision/lineitem"
	"bid-review/decision/recommend"
	"bid-review/decision/reconcile"
	"bid-review/decision/status"
	"bid-review/decision/takeoff"
	"bid-review/ingest"
	"bid-review/llm"
	"bid-review/pkg/platform"
	"bid-review/report"
)

// =============================================================================
// RECONCILE COMMAND
// =============================================================================

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Reconcile a bid proposal against the required line items",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "required",
				Aliases:  []string{"r"},
				Usage:    "Requirements document (.json or .xlsx)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "proposed",
				Aliases:  []string{"p"},
				Usage:    "Proposal document (.json or .xlsx)",
				Required: true,
			},
			&cli.Float64Flag{
				Name:  "tolerance",
				Usage: "Variance tolerance as a fraction (0.05 = 5%)",
			},
			&cli.StringFlag{
				Name:  "extra-scan",
				Usage: "Extra-item scan (literal, consumed)",
			},
			&cli.StringFlag{
				Name:  "multiplicity",
				Usage: "Duplicate proposal keys (keep_first, keep_last, keep_all)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallel classification workers",
			},
		},
		Action: runReconcile,
	}
}

func runReconcile(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyReconcileFlags(c, &cfg.Reconcile)

	required, err := ingest.LoadItems(c.String("required"))
	if err != nil {
		return fmt.Errorf("failed to load requirements: %w", err)
	}
	proposed, err := ingest.LoadItems(c.String("proposed"))
	if err != nil {
		return fmt.Errorf("failed to load proposal: %w", err)
	}

	rep := reconcile.NewEngine(&cfg.Reconcile).Reconcile(required, proposed)
	return newPrinter(c.App.Writer, c.String("format")).reconciliation(rep)
}

func applyReconcileFlags(c *cli.Context, rc *reconcile.Config) {
	if c.IsSet("tolerance") {
		rc.VarianceTolerance = c.Float64("tolerance")
	}
	if c.IsSet("extra-scan") {
		rc.ExtraScan = reconcile.ExtraScan(c.String("extra-scan"))
	}
	if c.IsSet("multiplicity") {
		rc.Multiplicity = reconcile.Multiplicity(c.String("multiplicity"))
	}
	if c.IsSet("workers") {
		rc.Workers = c.Int("workers")
	}
}

// =============================================================================
// COMPARE COMMAND
// =============================================================================

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare proposal quantities against plan takeoff quantities",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "proposal",
				Aliases:  []string{"p"},
				Usage:    "Proposal document (.json or .xlsx)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "plan",
				Usage:    "Plan takeoff document; repeat for several sheets",
				Required: true,
			},
			&cli.Float64Flag{
				Name:  "tolerance",
				Usage: "Plan tolerance as a fraction (0.10 = 10%)",
			},
		},
		Action: runCompare,
	}
}

func runCompare(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tolerance := cfg.Compare.Tolerance
	if c.IsSet("tolerance") {
		tolerance = c.Float64("tolerance")
	}

	proposal, err := ingest.LoadItems(c.String("proposal"))
	if err != nil {
		return fmt.Errorf("failed to load proposal: %w", err)
	}
	raw, err := loadAll(c.StringSlice("plan"))
	if err != nil {
		return err
	}
	plan := takeoff.LineItems(takeoff.Aggregate(raw))

	cmp := reconcile.NewEngine(&cfg.Reconcile).CompareQuantities(proposal, plan, tolerance)
	return newPrinter(c.App.Writer, c.String("format")).comparison(cmp, tolerance)
}

// =============================================================================
// AGGREGATE COMMAND
// =============================================================================

func aggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "Combine plan takeoff quantities from several sheets",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Takeoff document; repeat for several sheets",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if _, err := loadConfig(c); err != nil {
				return err
			}
			items, err := loadAll(c.StringSlice("input"))
			if err != nil {
				return err
			}
			return newPrinter(c.App.Writer, c.String("format")).aggregate(takeoff.Aggregate(items), takeoff.Totals(items), len(items))
		},
	}
}

func loadAll(paths []string) ([]lineitem.LineItem, error) {
	all := make([]lineitem.LineItem, 0)
	for _, p := range paths {
		items, err := ingest.LoadItems(p)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p, err)
		}
		all = append(all, items...)
	}
	return all, nil
}

// =============================================================================
// ANALYZE COMMAND
// =============================================================================

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Full bid review: reconciliation, findings, status and recommendations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "required",
				Aliases:  []string{"r"},
				Usage:    "Requirements document (.json or .xlsx)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "proposed",
				Aliases:  []string{"p"},
				Usage:    "Proposal document (.json or .xlsx)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "findings",
				Usage: "AI findings JSON to merge into the review",
			},
			&cli.BoolFlag{
				Name:  "ai",
				Usage: "Request findings from the configured model",
			},
			&cli.StringFlag{
				Name:  "project",
				Usage: "Project name recorded on the analysis",
			},
			&cli.StringFlag{
				Name:  "export",
				Usage: "Write the analysis to an xlsx workbook",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Save the analysis to the configured history store",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	required, err := ingest.LoadItems(c.String("required"))
	if err != nil {
		return fmt.Errorf("failed to load requirements: %w", err)
	}
	proposed, err := ingest.LoadItems(c.String("proposed"))
	if err != nil {
		return fmt.Errorf("failed to load proposal: %w", err)
	}

	req := analysis.Request{
		Project:      c.String("project"),
		Requirements: required,
		Proposal:     proposed,
	}
	if path := c.String("findings"); path != "" {
		f, err := ingest.LoadFindings(path)
		if err != nil {
			return fmt.Errorf("failed to load findings: %w", err)
		}
		req.Findings = &f
	} else if c.Bool("ai") {
		client, err := llm.NewClient(cfg.AI)
		if err != nil {
			return err
		}
		req.Source = client
	}

	var history analysis.HistoryStore
	if c.Bool("record") {
		history, err = openHistory(ctx, cfg)
		if err != nil {
			return err
		}
		defer history.Close()
	}

	result, err := newAnalyzer(cfg, history).Analyze(ctx, req)
	if err != nil {
		return err
	}

	if path := c.String("export"); path != "" {
		if err := exportWorkbook(path, result); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("Analysis exported")
	}

	if err := newPrinter(c.App.Writer, c.String("format")).review(result); err != nil {
		return err
	}
	if result.Status.Blocking() {
		return cli.Exit("", 2)
	}
	return nil
}

func newAnalyzer(cfg *platform.Config, history analysis.HistoryStore) *analysis.Analyzer {
	return analysis.NewAnalyzer(
		reconcile.NewEngine(&cfg.Reconcile),
		status.NewEngine(&cfg.Status),
		recommend.NewPrioritizer(&cfg.Recommend),
		history,
	)
}

func exportWorkbook(path string, a *analysis.Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := report.WriteWorkbook(f, a); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// =============================================================================
// EXTRACT COMMAND
// =============================================================================

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract line items from document text with the configured model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Plain-text document",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			path := c.String("input")
			text, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			client, err := llm.NewClient(cfg.AI)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, time.Duration(cfg.AI.TimeoutSeconds)*time.Second)
			defer cancel()
			items, err := client.ExtractLineItems(ctx, string(text), path)
			if err != nil {
				return err
			}
			return newPrinter(c.App.Writer, "json").items(items)
		},
	}
}

// =============================================================================
// HISTORY COMMAND
// =============================================================================

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded analyses",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "session",
				Usage: "Only analyses of this session",
			},
			&cli.IntFlag{
				Name:  "limit",
				Value: analysis.DefaultHistoryLimit,
				Usage: "Maximum number of entries",
			},
			&cli.DurationFlag{
				Name:  "stats",
				Usage: "Count outcomes per status over this window instead of listing (clickhouse history only)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			history, err := openHistory(c.Context, cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			if window := c.Duration("stats"); window > 0 {
				ch, ok := history.(*clickhouse.Store)
				if !ok {
					return fmt.Errorf("--stats requires the clickhouse history backend, have %q", cfg.Storage.History)
				}
				counts, err := ch.StatusCounts(c.Context, time.Now().Add(-window))
				if err != nil {
					return err
				}
				return newPrinter(c.App.Writer, c.String("format")).statusCounts(counts)
			}

			entries, err := history.List(c.Context, analysis.HistoryFilter{
				SessionID: c.String("session"),
				Limit:     c.Int("limit"),
			})
			if err != nil {
				return err
			}
			return newPrinter(c.App.Writer, c.String("format")).history(entries)
		},
	}
}
