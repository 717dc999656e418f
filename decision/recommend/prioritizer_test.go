package recommend

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"bid-review/decision/lineitem"
	"bid-review/decision/reconcile"
)

func missing(descs ...string) []reconcile.Missing {
	out := make([]reconcile.Missing, len(descs))
	for i, d := range descs {
		out[i] = reconcile.Missing{Item: lineitem.LineItem{Description: d, Quantity: decimal.NewFromInt(1)}, RequiredIndex: i}
	}
	return out
}

func TestPrioritize_Order(t *testing.T) {
	t.Parallel()

	report := &reconcile.Report{
		Discrepancies: []reconcile.Discrepancy{
			{Description: "Aggregate Base", VariancePct: -15},
			{Description: "Asphalt", VariancePct: 20},
			{Description: "Curb", VariancePct: -10},
		},
		Missing: missing("Topsoil Removal"),
	}
	findings := lineitem.Finding{
		CriticalIssues:  []string{"Bid bond not included"},
		Warnings:        []string{"Addendum 2 not acknowledged"},
		Recommendations: []string{"Confirm haul distances"},
	}

	got := NewPrioritizer(nil).Prioritize(report, findings)
	want := []Recommendation{
		{PriorityCritical, "Bid bond not included", "May result in bid rejection"},
		{PriorityHigh, "Review quantity for: Aggregate Base", "Proposal is 15.0% under requirement"},
		{PriorityHigh, "Add missing item: Topsoil Removal", "Required by RFP but not in proposal"},
		{PriorityMedium, "Addendum 2 not acknowledged", "Potential issue identified"},
		{PriorityLow, "Confirm haul distances", "Suggested improvement"},
	}
	if len(got) != len(want) {
		t.Fatalf("want %d recommendations got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("[%d] want=%+v got=%+v", i, want[i], got[i])
		}
	}
}

func TestPrioritize_MissingCapAndDedup(t *testing.T) {
	t.Parallel()

	report := &reconcile.Report{Missing: missing("A", "B", "C", "D", "E", "F", "G")}
	findings := lineitem.Finding{
		Warnings:        []string{"Add missing item: A", "Check traffic plan"},
		Recommendations: []string{"Check traffic plan", "Add missing item: F"},
	}

	got := NewPrioritizer(nil).Prioritize(report, findings)

	high := 0
	for _, r := range got {
		if r.Priority == PriorityHigh {
			high++
		}
	}
	if high != 5 {
		t.Fatalf("want 5 missing-item recommendations got %d", high)
	}

	actions := make(map[string]int)
	for _, r := range got {
		actions[r.Action]++
	}
	for a, n := range actions {
		if n > 1 {
			t.Fatalf("action %q emitted %d times", a, n)
		}
	}
	// F is past the missing cap, so the AI suggestion survives as LOW.
	last := got[len(got)-1]
	if last.Action != "Add missing item: F" || last.Priority != PriorityLow {
		t.Fatalf("unexpected tail %+v", last)
	}
	if len(got) != 7 {
		t.Fatalf("want 7 recommendations got %d: %+v", len(got), got)
	}
}

func TestPrioritize_Cap(t *testing.T) {
	t.Parallel()

	var findings lineitem.Finding
	for i := 0; i < 20; i++ {
		findings.Warnings = append(findings.Warnings, fmt.Sprintf("warning %d", i))
	}
	findings.CriticalIssues = []string{"critical"}

	got := NewPrioritizer(nil).Prioritize(nil, findings)
	if len(got) != 15 {
		t.Fatalf("want cap of 15 got %d", len(got))
	}
	if got[0].Priority != PriorityCritical {
		t.Fatalf("critical must survive truncation")
	}

	custom := NewPrioritizer(&Config{Max: 3, MaxMissing: 5, UnderDeliveryPct: -10}).Prioritize(nil, findings)
	if len(custom) != 3 {
		t.Fatalf("want custom cap 3 got %d", len(custom))
	}
}

func TestPrioritize_Empty(t *testing.T) {
	t.Parallel()

	got := NewPrioritizer(nil).Prioritize(&reconcile.Report{}, lineitem.Finding{})
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil list, got %#v", got)
	}
}

func TestMergeFindings(t *testing.T) {
	t.Parallel()

	report := &reconcile.Report{Missing: missing("Riprap", "Seeding", "Fence", "Gate", "Sign", "Striping")}
	findings := lineitem.Finding{Warnings: []string{"Missing item: Seeding"}}

	merged := NewPrioritizer(nil).MergeFindings(report, findings)
	want := []string{
		"Missing item: Seeding",
		"Missing item: Riprap",
		"Missing item: Fence",
		"Missing item: Gate",
		"Missing item: Sign",
	}
	if len(merged.Warnings) != len(want) {
		t.Fatalf("want %v got %v", want, merged.Warnings)
	}
	for i := range want {
		if merged.Warnings[i] != want[i] {
			t.Fatalf("[%d] want=%q got=%q", i, want[i], merged.Warnings[i])
		}
	}
	if len(findings.Warnings) != 1 {
		t.Fatalf("input findings were mutated: %v", findings.Warnings)
	}
}
