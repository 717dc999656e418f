// Package report renders analyses as spreadsheets.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bid-review/decision/analysis"
	"bid-review/decision/lineitem"
	"bid-review/pkg/units"
)

// Sheet names, in workbook order.
const (
	SheetSummary         = "Summary"
	SheetMatches         = "Matches"
	SheetDiscrepancies   = "Discrepancies"
	SheetMissing         = "Missing"
	SheetExtra           = "Extra"
	SheetRecommendations = "Recommendations"
)

// WriteWorkbook writes an analysis as an xlsx workbook.
func WriteWorkbook(w io.Writer, a *analysis.Analysis) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	b := &builder{f: f, header: header}
	b.sheet(SheetSummary, []string{"Field", "Value"}, summaryRows(a))
	if r := a.Report; r != nil {
		rows := make([][]any, 0, len(r.Matches))
		for _, m := range r.Matches {
			rows = append(rows, []any{m.Description, qty(m.RequiredQty), qty(m.ProposedQty), unitLabel(m.Unit), m.VariancePct})
		}
		b.sheet(SheetMatches, []string{"Description", "Required", "Proposed", "Unit", "Variance %"}, rows)

		rows = make([][]any, 0, len(r.Discrepancies))
		for _, d := range r.Discrepancies {
			rows = append(rows, []any{d.Description, d.Counterpart, qty(d.RequiredQty), qty(d.ProposedQty), unitLabel(d.Unit), d.VariancePct, d.Note})
		}
		b.sheet(SheetDiscrepancies, []string{"Description", "Proposed As", "Required", "Proposed", "Unit", "Variance %", "Note"}, rows)

		b.sheet(SheetMissing, itemHeaders, itemRows(r.MissingItems()))
		b.sheet(SheetExtra, itemHeaders, itemRows(r.ExtraItems()))
	}

	rows := make([][]any, 0, len(a.Recommendations))
	for _, rec := range a.Recommendations {
		rows = append(rows, []any{string(rec.Priority), rec.Action, rec.Reason})
	}
	b.sheet(SheetRecommendations, []string{"Priority", "Action", "Reason"}, rows)

	if b.err != nil {
		return b.err
	}
	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

var itemHeaders = []string{"Item", "Description", "Quantity", "Unit", "Category", "Unit Price", "Total Price", "Source"}

func itemRows(items []lineitem.LineItem) [][]any {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{
			it.ItemNumber, it.Description, qty(it.Quantity), unitLabel(it.Unit), it.Category,
			FormatCurrency(it.UnitPrice), FormatCurrency(it.TotalPrice), it.Source,
		})
	}
	return rows
}

func summaryRows(a *analysis.Analysis) [][]any {
	rows := [][]any{
		{"Analysis ID", a.ID},
		{"Project", a.Project},
		{"Created", a.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"Status", string(a.Status.Code)},
		{"Message", a.Status.Message},
		{"Completeness Score", a.Status.CompletenessScore},
		{"Accuracy Score", a.Status.AccuracyScore},
		{"Critical Issues", a.Status.CriticalIssues},
		{"Warnings", a.Status.Warnings},
	}
	if r := a.Report; r != nil {
		rows = append(rows,
			[]any{"Matches", len(r.Matches)},
			[]any{"Discrepancies", len(r.Discrepancies)},
			[]any{"Missing", len(r.Missing)},
			[]any{"Extra", len(r.Extra)},
		)
	}
	for _, issue := range a.Findings.CriticalIssues {
		rows = append(rows, []any{"Critical", issue})
	}
	for _, warning := range a.Findings.Warnings {
		rows = append(rows, []any{"Warning", warning})
	}
	if a.AIError != "" {
		rows = append(rows, []any{"AI Error", a.AIError})
	}
	return rows
}

type builder struct {
	f      *excelize.File
	header int
	err    error
	sheets int
}

func (b *builder) sheet(name string, headers []string, rows [][]any) {
	if b.err != nil {
		return
	}
	if b.sheets == 0 {
		b.err = b.f.SetSheetName("Sheet1", name)
	} else {
		_, b.err = b.f.NewSheet(name)
	}
	if b.err != nil {
		return
	}
	b.sheets++

	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	if b.err = b.f.SetSheetRow(name, "A1", &hdr); b.err != nil {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if b.err = b.f.SetCellStyle(name, "A1", last, b.header); b.err != nil {
		return
	}
	if b.err = b.f.SetColWidth(name, "A", "A", 14); b.err != nil {
		return
	}
	if b.err = b.f.SetColWidth(name, "B", "B", 48); b.err != nil {
		return
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		r := row
		if b.err = b.f.SetSheetRow(name, cell, &r); b.err != nil {
			return
		}
	}
}

func qty(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// unitLabel spells out known units, e.g. "LF (linear feet)".
func unitLabel(u string) string {
	if !units.Known(u) {
		return u
	}
	return fmt.Sprintf("%s (%s)", units.Key(u), units.Name(u))
}

// FormatCurrency renders an amount as US dollars with thousands separators.
func FormatCurrency(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
