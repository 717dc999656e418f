// Package recommend turns reconciliation results and AI findings into a
// prioritized action list.
package recommend

import (
	"fmt"
	"math"

	"bid-review/decision/lineitem"
	"bid-review/decision/reconcile"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Recommendation is a single action for the estimator.
type Recommendation struct {
	Priority Priority `json:"priority"`
	Action   string   `json:"action"`
	Reason   string   `json:"reason"`
}

// Config limits the recommendation list.
type Config struct {
	// Max caps the final list.
	Max int `toml:"max" json:"max" validate:"gte=1"`
	// MaxMissing caps the missing items turned into recommendations or warnings.
	MaxMissing int `toml:"max_missing" json:"max_missing" validate:"gte=0"`
	// UnderDeliveryPct flags discrepancies whose signed variance is below it.
	UnderDeliveryPct float64 `toml:"under_delivery_pct" json:"under_delivery_pct" validate:"lte=0"`
}

// DefaultConfig returns the standard limits.
func DefaultConfig() *Config {
	return &Config{
		Max:              15,
		MaxMissing:       5,
		UnderDeliveryPct: -10,
	}
}

// Prioritizer builds recommendation lists.
type Prioritizer struct {
	cfg Config
}

// NewPrioritizer creates a prioritizer. A nil config uses the defaults.
func NewPrioritizer(cfg *Config) *Prioritizer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Prioritizer{cfg: *cfg}
}

// Prioritize orders critical issues, under-delivered quantities, missing
// items, warnings and suggestions. An action already emitted is skipped.
func (p *Prioritizer) Prioritize(report *reconcile.Report, findings lineitem.Finding) []Recommendation {
	l := &list{seen: make(map[string]bool), out: make([]Recommendation, 0)}

	for _, issue := range findings.CriticalIssues {
		l.add(PriorityCritical, issue, "May result in bid rejection")
	}

	if report != nil {
		for _, d := range report.Discrepancies {
			if d.VariancePct < p.cfg.UnderDeliveryPct {
				l.add(PriorityHigh,
					fmt.Sprintf("Review quantity for: %s", d.Description),
					fmt.Sprintf("Proposal is %.1f%% under requirement", math.Abs(d.VariancePct)))
			}
		}
		for i, m := range report.Missing {
			if i >= p.cfg.MaxMissing {
				break
			}
			l.add(PriorityHigh,
				fmt.Sprintf("Add missing item: %s", m.Item.Description),
				"Required by RFP but not in proposal")
		}
	}

	for _, w := range findings.Warnings {
		l.add(PriorityMedium, w, "Potential issue identified")
	}
	for _, r := range findings.Recommendations {
		l.add(PriorityLow, r, "Suggested improvement")
	}

	if p.cfg.Max > 0 && len(l.out) > p.cfg.Max {
		l.out = l.out[:p.cfg.Max]
	}
	return l.out
}

// MergeFindings returns a copy of findings with a "Missing item" warning for
// each of the first missing items of the report that is not already listed.
func (p *Prioritizer) MergeFindings(report *reconcile.Report, findings lineitem.Finding) lineitem.Finding {
	merged := findings.Clone()
	if merged.CriticalIssues == nil {
		merged.CriticalIssues = make([]string, 0)
	}
	if merged.Warnings == nil {
		merged.Warnings = make([]string, 0)
	}
	if merged.Recommendations == nil {
		merged.Recommendations = make([]string, 0)
	}
	if report == nil {
		return merged
	}

	present := make(map[string]bool, len(merged.Warnings))
	for _, w := range merged.Warnings {
		present[w] = true
	}
	for i, m := range report.Missing {
		if i >= p.cfg.MaxMissing {
			break
		}
		w := fmt.Sprintf("Missing item: %s", m.Item.Description)
		if present[w] {
			continue
		}
		present[w] = true
		merged.Warnings = append(merged.Warnings, w)
	}
	return merged
}

type list struct {
	seen map[string]bool
	out  []Recommendation
}

func (l *list) add(p Priority, action, reason string) {
	if l.seen[action] {
		return
	}
	l.seen[action] = true
	l.out = append(l.out, Recommendation{Priority: p, Action: action, Reason: reason})
}
