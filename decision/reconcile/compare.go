package reconcile

import (
	"bid-review/decision/lineitem"
	"bid-review/pkg/score"
)

// DefaultPlanTolerance is the variance accepted between proposal and plan
// quantities.
const DefaultPlanTolerance = 0.10

// QuantityComparison classifies proposal quantities against plan takeoff
// quantities.
type QuantityComparison struct {
	Matches        []Match             `json:"matches"`
	OverEstimated  []Discrepancy       `json:"over_estimated"`
	UnderEstimated []Discrepancy       `json:"under_estimated"`
	FuzzyMatches   []Discrepancy       `json:"fuzzy_matches"`
	NotOnPlans     []lineitem.LineItem `json:"not_on_plans"`
	NotInProposal  []lineitem.LineItem `json:"not_in_proposal"`
	Summary        ComparisonSummary   `json:"summary"`
}

// ComparisonSummary holds the counts of a QuantityComparison.
type ComparisonSummary struct {
	TotalItems               int     `json:"total_items"`
	Matches                  int     `json:"matches"`
	OverEstimated            int     `json:"over_estimated"`
	UnderEstimated           int     `json:"under_estimated"`
	FuzzyMatches             int     `json:"fuzzy_matches"`
	MatchRate                float64 `json:"match_rate"`
	ItemsNotOnPlans          int     `json:"items_not_on_plans"`
	ItemsMissingFromProposal int     `json:"items_missing_from_proposal"`
}

// CompareQuantities checks proposal quantities against plan quantities. The
// plan is the required side. A negative tolerance falls back to
// DefaultPlanTolerance; zero demands equal quantities. A positive proposal
// quantity against a plan quantity of zero is over-estimated by 100%.
func (e *Engine) CompareQuantities(proposal, plan []lineitem.LineItem, tolerance float64) *QuantityComparison {
	if tolerance < 0 {
		tolerance = DefaultPlanTolerance
	}
	report := e.ReconcileWithTolerance(plan, proposal, tolerance)

	result := &QuantityComparison{
		Matches:        make([]Match, 0, len(report.Matches)),
		OverEstimated:  make([]Discrepancy, 0),
		UnderEstimated: make([]Discrepancy, 0),
		FuzzyMatches:   make([]Discrepancy, 0),
		NotOnPlans:     report.ExtraItems(),
		NotInProposal:  report.MissingItems(),
	}

	for _, m := range report.Matches {
		if !m.RequiredQty.IsPositive() && m.ProposedQty.IsPositive() {
			result.OverEstimated = append(result.OverEstimated, overPlan(m))
			continue
		}
		result.Matches = append(result.Matches, m)
	}

	for _, d := range report.Discrepancies {
		switch {
		case d.Fuzzy:
			result.FuzzyMatches = append(result.FuzzyMatches, d)
		case d.Difference.IsPositive():
			result.OverEstimated = append(result.OverEstimated, d)
		default:
			result.UnderEstimated = append(result.UnderEstimated, d)
		}
	}

	result.Summary = ComparisonSummary{
		TotalItems:               len(proposal),
		Matches:                  len(result.Matches),
		OverEstimated:            len(result.OverEstimated),
		UnderEstimated:           len(result.UnderEstimated),
		FuzzyMatches:             len(result.FuzzyMatches),
		MatchRate:                score.Percent(len(result.Matches), len(proposal)),
		ItemsNotOnPlans:          len(result.NotOnPlans),
		ItemsMissingFromProposal: len(result.NotInProposal),
	}
	return result
}

// overPlan turns an exact-key pairing against a zero plan quantity into an
// over-estimate.
func overPlan(m Match) Discrepancy {
	return Discrepancy{
		Description:   m.Description,
		RequiredQty:   m.RequiredQty,
		ProposedQty:   m.ProposedQty,
		Unit:          m.Unit,
		VariancePct:   100,
		Difference:    m.ProposedQty.Sub(m.RequiredQty).Round(2),
		Counterpart:   m.Description,
		RequiredIndex: m.RequiredIndex,
		ProposedIndex: m.ProposedIndex,
	}
}
