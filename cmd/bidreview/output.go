package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"bid-review/db/clickhouse"
	"bid-review/decision/analysis"
	"bid-review/decision/lineitem"
	"bid-review/decision/reconcile"
	"bid-review/decision/status"
	"bid-review/decision/takeoff"
	"bid-review/report"
)

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: strings.ToLower(format)}
}

func (p *printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

const rule = "══════════════════════════════════════════════════════════════"

func (p *printer) banner(title string) {
	p.println("╔" + rule + "╗")
	p.printf("║  %-60s║\n", title)
	p.println("╠" + rule + "╣")
}

func (p *printer) section(title string) {
	p.println("╠" + rule + "╣")
	p.printf("║  %-60s║\n", title)
	p.println("╠" + rule + "╣")
}

func (p *printer) line(s string) {
	p.printf("║  %-60s║\n", truncate(s, 60))
}

func (p *printer) close() {
	p.println("╚" + rule + "╝")
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func (p *printer) reconciliation(r *reconcile.Report) error {
	switch p.format {
	case "json":
		return p.writeJSON(r)
	case "markdown":
		p.reportMarkdown(r)
		return nil
	}

	p.banner("BID RECONCILIATION")
	p.line(fmt.Sprintf("Required items:      %d", r.RequiredCount))
	p.line(fmt.Sprintf("Proposed items:      %d", r.ProposedCount))
	p.line(fmt.Sprintf("Completeness score:  %.1f%%", r.CompletenessScore))
	p.line(fmt.Sprintf("Accuracy score:      %.1f%%", r.AccuracyScore))
	p.line(fmt.Sprintf("Matches %d  Discrepancies %d  Missing %d  Extra %d",
		len(r.Matches), len(r.Discrepancies), len(r.Missing), len(r.Extra)))

	if len(r.Discrepancies) > 0 {
		p.section("DISCREPANCIES")
		for _, d := range r.Discrepancies {
			p.line(fmt.Sprintf("%-32s %s -> %s %s (%+.1f%%)",
				truncate(d.Description, 32), d.RequiredQty, d.ProposedQty, d.Unit, d.VariancePct))
			if d.Note != "" {
				p.line("  " + d.Note)
			}
		}
	}
	if len(r.Missing) > 0 {
		p.section("MISSING FROM PROPOSAL")
		for _, m := range r.Missing {
			p.line(fmt.Sprintf("%-40s %s %s", truncate(m.Item.Description, 40), m.Item.Quantity, m.Item.Unit))
		}
	}
	if len(r.Extra) > 0 {
		p.section("NOT IN REQUIREMENTS")
		for _, e := range r.Extra {
			p.line(fmt.Sprintf("%-40s %s %s", truncate(e.Item.Description, 40), e.Item.Quantity, e.Item.Unit))
		}
	}
	p.close()
	return nil
}

func (p *printer) reportMarkdown(r *reconcile.Report) {
	p.println("## Bid Reconciliation")
	p.println("")
	p.println("| Metric | Value |")
	p.println("|--------|-------|")
	p.printf("| **Completeness** | %.1f%% |\n", r.CompletenessScore)
	p.printf("| **Accuracy** | %.1f%% |\n", r.AccuracyScore)
	p.printf("| Matches | %d |\n", len(r.Matches))
	p.printf("| Discrepancies | %d |\n", len(r.Discrepancies))
	p.printf("| Missing | %d |\n", len(r.Missing))
	p.printf("| Extra | %d |\n", len(r.Extra))

	if len(r.Discrepancies) > 0 {
		p.println("")
		p.println("### Discrepancies")
		p.println("")
		p.println("| Item | Required | Proposed | Variance | Note |")
		p.println("|------|----------|----------|----------|------|")
		for _, d := range r.Discrepancies {
			p.printf("| %s | %s %s | %s %s | %+.1f%% | %s |\n",
				d.Description, d.RequiredQty, d.Unit, d.ProposedQty, d.Unit, d.VariancePct, d.Note)
		}
	}
	if len(r.Missing) > 0 {
		p.println("")
		p.println("### Missing From Proposal")
		p.println("")
		for _, m := range r.Missing {
			p.printf("- %s (%s %s)\n", m.Item.Description, m.Item.Quantity, m.Item.Unit)
		}
	}
	if len(r.Extra) > 0 {
		p.println("")
		p.println("### Not In Requirements")
		p.println("")
		for _, e := range r.Extra {
			p.printf("- %s (%s %s)\n", e.Item.Description, e.Item.Quantity, e.Item.Unit)
		}
	}
}

// =============================================================================
// PLAN COMPARISON
// =============================================================================

func (p *printer) comparison(c *reconcile.QuantityComparison, tolerance float64) error {
	if p.format == "json" {
		return p.writeJSON(c)
	}

	s := c.Summary
	if p.format == "markdown" {
		p.println("## Quantity Comparison")
		p.println("")
		p.printf("Tolerance: %.0f%%. Match rate: %.1f%%.\n\n", tolerance*100, s.MatchRate)
		p.println("| Over | Under | Fuzzy | Not on plans | Missing from proposal |")
		p.println("|------|-------|-------|--------------|-----------------------|")
		p.printf("| %d | %d | %d | %d | %d |\n", s.OverEstimated, s.UnderEstimated, s.FuzzyMatches, s.ItemsNotOnPlans, s.ItemsMissingFromProposal)
		return nil
	}

	p.banner("QUANTITY COMPARISON")
	p.line(fmt.Sprintf("Tolerance:           %.0f%%", tolerance*100))
	p.line(fmt.Sprintf("Match rate:          %.1f%% (%d of %d)", s.MatchRate, s.Matches, s.TotalItems))
	p.line(fmt.Sprintf("Over %d  Under %d  Fuzzy %d", s.OverEstimated, s.UnderEstimated, s.FuzzyMatches))
	p.line(fmt.Sprintf("Not on plans %d  Missing from proposal %d", s.ItemsNotOnPlans, s.ItemsMissingFromProposal))
	for _, group := range []struct {
		title string
		items []reconcile.Discrepancy
	}{
		{"OVER-ESTIMATED", c.OverEstimated},
		{"UNDER-ESTIMATED", c.UnderEstimated},
		{"FUZZY MATCHES", c.FuzzyMatches},
	} {
		if len(group.items) == 0 {
			continue
		}
		p.section(group.title)
		for _, d := range group.items {
			p.line(fmt.Sprintf("%-32s plan %s, bid %s %s", truncate(d.Description, 32), d.RequiredQty, d.ProposedQty, d.Unit))
		}
	}
	p.close()
	return nil
}

// =============================================================================
// AGGREGATION
// =============================================================================

type aggregateOutput struct {
	RawCount int                      `json:"raw_count"`
	Items    []takeoff.AggregatedItem `json:"items"`
	Totals   takeoff.CostTotals       `json:"totals"`
}

func (p *printer) aggregate(aggs []takeoff.AggregatedItem, totals takeoff.CostTotals, raw int) error {
	switch p.format {
	case "json":
		return p.writeJSON(aggregateOutput{RawCount: raw, Items: aggs, Totals: totals})
	case "markdown":
		p.println("## Plan Quantities")
		p.println("")
		p.println("| Category | Description | Quantity | Unit | Sources |")
		p.println("|----------|-------------|----------|------|---------|")
		for _, a := range aggs {
			p.printf("| %s | %s | %s | %s | %s |\n", a.Category, a.Description, a.Quantity, a.Unit, strings.Join(a.Sources, ", "))
		}
		return nil
	}

	p.banner(fmt.Sprintf("PLAN QUANTITIES (%d lines from %d)", len(aggs), raw))
	category := "\x00"
	for _, a := range aggs {
		if a.Category != category {
			category = a.Category
			name := category
			if name == "" {
				name = takeoff.DefaultCategory
			}
			p.section(strings.ToUpper(name))
		}
		p.line(fmt.Sprintf("%-40s %10s %-4s (%d)", truncate(a.Description, 40), a.Quantity, a.Unit, a.SourceCount))
	}
	if totals.Subtotal.IsPositive() {
		p.section("COST TOTALS")
		p.line("Material:   " + report.FormatCurrency(totals.MaterialTotal))
		p.line("Labor:      " + report.FormatCurrency(totals.LaborTotal))
		p.line("Equipment:  " + report.FormatCurrency(totals.EquipmentTotal))
		p.line("Subtotal:   " + report.FormatCurrency(totals.Subtotal))
	}
	p.close()
	return nil
}

// =============================================================================
// ANALYSIS
// =============================================================================

func statusIcon(code status.Code) string {
	switch code {
	case status.Ready:
		return "✅ " + string(code)
	case status.ReviewWarnings:
		return "⚠️  " + string(code)
	case status.NotReady:
		return "❌ " + string(code)
	default:
		return "🔶 " + string(code)
	}
}

func (p *printer) review(a *analysis.Analysis) error {
	switch p.format {
	case "json":
		return p.writeJSON(a)
	case "markdown":
		p.println("## Bid Review")
		p.println("")
		p.printf("**Status:** %s (%s)\n\n", a.Status.Code, a.Status.Message)
		p.reportMarkdown(a.Report)
		if len(a.Recommendations) > 0 {
			p.println("")
			p.println("### Recommendations")
			p.println("")
			for _, r := range a.Recommendations {
				p.printf("- **%s** %s: %s\n", r.Priority, r.Action, r.Reason)
			}
		}
		return nil
	}

	if err := p.reconciliation(a.Report); err != nil {
		return err
	}
	p.banner("BID STATUS")
	p.line(statusIcon(a.Status.Code))
	p.line(a.Status.Message)
	if a.AIError != "" {
		p.line("AI findings unavailable: " + a.AIError)
	}
	if len(a.Findings.CriticalIssues) > 0 || len(a.Findings.Warnings) > 0 {
		p.section("FINDINGS")
		for _, c := range a.Findings.CriticalIssues {
			p.line("❌ " + c)
		}
		for _, w := range a.Findings.Warnings {
			p.line("⚠️  " + w)
		}
	}
	if len(a.Recommendations) > 0 {
		p.section("RECOMMENDATIONS")
		for _, r := range a.Recommendations {
			p.line(fmt.Sprintf("[%s] %s", r.Priority, r.Action))
		}
	}
	p.close()
	return nil
}

func (p *printer) history(entries []analysis.HistoryEntry) error {
	if p.format == "json" {
		return p.writeJSON(entries)
	}
	p.println("| Created | ID | Project | Status | Completeness | Accuracy |")
	p.println("|---------|----|---------|--------|--------------|----------|")
	for _, e := range entries {
		p.printf("| %s | %s | %s | %s | %.1f%% | %.1f%% |\n",
			e.CreatedAt.Format("2006-01-02 15:04"), e.ID, e.Project, e.Status, e.CompletenessScore, e.AccuracyScore)
	}
	return nil
}

func (p *printer) statusCounts(counts []clickhouse.StatusCount) error {
	if p.format == "json" {
		return p.writeJSON(counts)
	}
	p.println("| Status | Analyses |")
	p.println("|--------|----------|")
	for _, c := range counts {
		p.printf("| %s | %d |\n", statusIcon(status.Code(c.Status)), c.Count)
	}
	return nil
}

func (p *printer) items(items []lineitem.LineItem) error {
	return p.writeJSON(map[string]any{"line_items": items})
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
