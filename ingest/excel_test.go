package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	bierrors "bid-review/pkg/errors"
)

func buildWorkbook(t *testing.T, sheets map[string][][]any) *bytes.Buffer {
	t.Helper()

	wb := excelize.NewFile()
	defaultSheet := wb.GetSheetName(wb.GetActiveSheetIndex())

	for name, rows := range sheets {
		if _, err := wb.NewSheet(name); err != nil {
			t.Fatalf("NewSheet %s: %v", name, err)
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			r := row
			if err := wb.SetSheetRow(name, cell, &r); err != nil {
				t.Fatalf("SetSheetRow %s: %v", name, err)
			}
		}
	}
	if _, ok := sheets[defaultSheet]; !ok {
		_ = wb.DeleteSheet(defaultSheet)
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf
}

func TestMapColumns(t *testing.T) {
	t.Parallel()

	m := MapColumns([]string{"Item No.", "Item Description", "Est. Qty", "Unit", "Unit Price", "Amount", "Remarks"})
	want := map[Column]int{
		ColItemNumber:  0,
		ColDescription: 1,
		ColQuantity:    2,
		ColUnit:        3,
		ColUnitPrice:   4,
		ColTotalPrice:  5,
		ColNotes:       6,
	}
	for col, idx := range want {
		if got, ok := m[col]; !ok || got != idx {
			t.Errorf("%s want=%d got=%d (present=%v)", col, idx, got, ok)
		}
	}
}

func TestReadWorkbook_BidSchedule(t *testing.T) {
	t.Parallel()

	buf := buildWorkbook(t, map[string][][]any{
		"Bid Schedule": {
			{"City of Springfield - Phase 2 Improvements"},
			{},
			{"Item", "Description", "Quantity", "Unit", "Unit Price", "Total"},
			{"1", "Mobilization", 1, "LS", 25000, 25000},
			{"2", "12 inch RCP Storm Pipe", "1,250", "LF", "$85.00", 106250},
			{"", "", "", "", "", ""},
			{"3", "Topsoil Removal", "TBD", "CY", "", ""},
			{"", "Subtotal", "", "", "", 131250},
		},
		"Notes": {
			{"General notes only"},
		},
	})

	items, err := ReadWorkbook(buf, "proposal.xlsx")
	if err != nil {
		t.Fatalf("ReadWorkbook: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 items got %d: %+v", len(items), items)
	}
	pipe := items[1]
	if pipe.Description != "12 inch RCP Storm Pipe" || !pipe.Quantity.Equal(decimal.NewFromInt(1250)) || pipe.Unit != "LF" {
		t.Fatalf("pipe: %+v", pipe)
	}
	if !pipe.UnitPrice.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("unit price: %s", pipe.UnitPrice)
	}
	if pipe.Source != "proposal.xlsx:Bid Schedule" {
		t.Fatalf("source: %q", pipe.Source)
	}
	if !items[2].Quantity.IsZero() {
		t.Fatalf("non-numeric quantity should be zero, got %s", items[2].Quantity)
	}
}

func TestReadWorkbook_NoSchedule(t *testing.T) {
	t.Parallel()

	buf := buildWorkbook(t, map[string][][]any{
		"Sheet1": {{"Name", "Phone"}, {"Estimator", "555-0100"}},
	})
	if _, err := ReadWorkbook(buf, "contacts.xlsx"); bierrors.Code(err) != bierrors.ErrCodeEmptyDocument {
		t.Fatalf("want EMPTY_DOCUMENT got %v", err)
	}
}

func TestReadItems_Dispatch(t *testing.T) {
	t.Parallel()

	items, err := ReadItems("reqs.JSON", strings.NewReader(`[{"description":"Seeding","quantity":3,"unit":"AC"}]`))
	if err != nil || len(items) != 1 {
		t.Fatalf("json dispatch: %v %+v", err, items)
	}
	if _, err := ReadItems("plans.pdf", strings.NewReader("%PDF")); bierrors.Code(err) != bierrors.ErrCodeUnsupportedFormat {
		t.Fatalf("want UNSUPPORTED_FORMAT got %v", err)
	}
	if _, err := ReadItems("broken.xlsx", strings.NewReader("not a zip")); bierrors.Code(err) != bierrors.ErrCodeParseFailed {
		t.Fatalf("want PARSE_FAILED got %v", err)
	}
}
