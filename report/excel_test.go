package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bid-review/decision/analysis"
	"bid-review/decision/lineitem"
	"bid-review/decision/recommend"
	"bid-review/decision/reconcile"
	"bid-review/decision/status"
)

func TestFormatCurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"12", "$12.00"},
		{"999.999", "$1,000.00"},
		{"1234567.5", "$1,234,567.50"},
		{"-4400.5", "-$4,400.50"},
		{"100000", "$100,000.00"},
	}
	for _, tt := range tests {
		if got := FormatCurrency(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatCurrency(%s) want=%s got=%s", tt.in, tt.want, got)
		}
	}
}

func TestUnitLabel(t *testing.T) {
	t.Parallel()

	if got := unitLabel("lf"); got != "LF (linear feet)" {
		t.Fatalf("known unit: %s", got)
	}
	if got := unitLabel("MBF"); got != "MBF" {
		t.Fatalf("unknown unit should pass through: %s", got)
	}
}

func TestWriteWorkbook(t *testing.T) {
	t.Parallel()

	a := &analysis.Analysis{
		ID:        "a-1",
		Project:   "Riverside Phase 2",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Report: &reconcile.Report{
			Matches: []reconcile.Match{
				{Description: "Silt Fence", RequiredQty: decimal.NewFromInt(500), ProposedQty: decimal.NewFromInt(510), Unit: "LF", VariancePct: 2},
			},
			Discrepancies: []reconcile.Discrepancy{
				{Description: "Storm Pipe 12 inch", Counterpart: "Storm Pipe 12 inches", RequiredQty: decimal.NewFromInt(300), ProposedQty: decimal.NewFromInt(300), Unit: "LF", Note: "Fuzzy match: Storm Pipe 12 inches", Fuzzy: true},
			},
			Missing: []reconcile.Missing{
				{Item: lineitem.LineItem{Description: "Inlet Protection", Quantity: decimal.NewFromInt(4), Unit: "EA"}},
			},
			Extra: []reconcile.Extra{},
		},
		Findings: lineitem.Finding{Warnings: []string{"Missing item: Inlet Protection"}},
		Status:   status.Status{Code: status.NeedsReview, Message: "Review discrepancies"},
		Recommendations: []recommend.Recommendation{
			{Priority: recommend.PriorityHigh, Action: "Add Inlet Protection", Reason: "Required item missing from proposal"},
		},
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, a); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	want := []string{SheetSummary, SheetMatches, SheetDiscrepancies, SheetMissing, SheetExtra, SheetRecommendations}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sheet %d want=%s got=%s", i, want[i], got[i])
		}
	}

	if v, _ := f.GetCellValue(SheetSummary, "B3"); v != "Riverside Phase 2" {
		t.Fatalf("project cell: %q", v)
	}
	if v, _ := f.GetCellValue(SheetDiscrepancies, "G2"); v != "Fuzzy match: Storm Pipe 12 inches" {
		t.Fatalf("note cell: %q", v)
	}
	if v, _ := f.GetCellValue(SheetMissing, "B2"); v != "Inlet Protection" {
		t.Fatalf("missing cell: %q", v)
	}
	rows, _ := f.GetRows(SheetExtra)
	if len(rows) != 1 {
		t.Fatalf("extra sheet should only hold the header, got %d rows", len(rows))
	}
	if v, _ := f.GetCellValue(SheetRecommendations, "A2"); v != "HIGH" {
		t.Fatalf("priority cell: %q", v)
	}
}
