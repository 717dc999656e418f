package ingest

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"bid-review/decision/lineitem"
	bierrors "bid-review/pkg/errors"
	"bid-review/pkg/fuzzy"
)

// headerScanRows is how far down a sheet the header row is searched for.
const headerScanRows = 15

// Column identifies a line-item field in a spreadsheet.
type Column string

const (
	ColItemNumber  Column = "item_number"
	ColDescription Column = "description"
	ColQuantity    Column = "quantity"
	ColUnit        Column = "unit"
	ColCategory    Column = "category"
	ColUnitPrice   Column = "unit_price"
	ColTotalPrice  Column = "total_price"
	ColSpec        Column = "spec_reference"
	ColNotes       Column = "notes"
)

// columnPatterns is checked in order against the normalized header text; the
// first match wins.
var columnPatterns = []struct {
	col Column
	re  *regexp.Regexp
}{
	{ColUnitPrice, regexp.MustCompile(`^(unitprice|unitcost|unitbid|price(each|perunit)?|rate)$`)},
	{ColTotalPrice, regexp.MustCompile(`^(total|totalprice|totalcost|amount|extension|extendedprice|bidamount)$`)},
	{ColQuantity, regexp.MustCompile(`(quantity|qty)`)},
	{ColDescription, regexp.MustCompile(`(description|desc$|^workitem$|^payitemdescription$|^itemname$)`)},
	{ColItemNumber, regexp.MustCompile(`^(item|itemno|itemnumber|itemnum|no|number|biditem|payitem|payitemno|line|lineno)$`)},
	{ColUnit, regexp.MustCompile(`^(unit|units|uom|unitofmeasure|um)$`)},
	{ColCategory, regexp.MustCompile(`^(category|division|section|group|trade)$`)},
	{ColSpec, regexp.MustCompile(`^(spec|specref|specreference|specification|specsection)$`)},
	{ColNotes, regexp.MustCompile(`^(notes?|remarks?|comments?)$`)},
}

// MapColumns maps header cells to line-item fields. Headers that match no
// field, or a field already mapped, are left out.
func MapColumns(headers []string) map[Column]int {
	mapping := make(map[Column]int)
	for idx, h := range headers {
		name := fuzzy.Normalize(h)
		if name == "" {
			continue
		}
		for _, p := range columnPatterns {
			if !p.re.MatchString(name) {
				continue
			}
			if _, taken := mapping[p.col]; !taken {
				mapping[p.col] = idx
			}
			break
		}
	}
	return mapping
}

func isHeader(mapping map[Column]int) bool {
	_, hasDesc := mapping[ColDescription]
	_, hasQty := mapping[ColQuantity]
	return hasDesc && hasQty
}

// ReadWorkbook reads line items from every sheet of a workbook that has a
// header row with description and quantity columns.
func ReadWorkbook(r io.Reader, source string) ([]lineitem.LineItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, bierrors.NewParseError(source, fmt.Errorf("failed to open excel: %w", err))
	}
	defer f.Close()

	items := make([]lineitem.LineItem, 0)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, bierrors.NewParseError(source, fmt.Errorf("read sheet %s: %w", sheet, err))
		}
		items = append(items, readSheet(rows, sheetSource(source, sheet))...)
	}

	if len(items) == 0 {
		return nil, bierrors.NewEmptyDocumentError(source)
	}
	for i, item := range items {
		if err := validate.Struct(item); err != nil {
			return nil, bierrors.NewValidationError(source, fmt.Errorf("line item %d: %w", i+1, err))
		}
	}
	return items, nil
}

func sheetSource(source, sheet string) string {
	if source == "" {
		return sheet
	}
	return source + ":" + sheet
}

func readSheet(rows [][]string, source string) []lineitem.LineItem {
	headerRow := -1
	var mapping map[Column]int
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		m := MapColumns(rows[i])
		if isHeader(m) {
			headerRow, mapping = i, m
			break
		}
	}
	if headerRow < 0 {
		return nil
	}

	items := make([]lineitem.LineItem, 0, len(rows)-headerRow-1)
	for _, row := range rows[headerRow+1:] {
		get := func(c Column) string {
			if idx, ok := mapping[c]; ok && idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}

		desc := get(ColDescription)
		if desc == "" {
			continue
		}
		// Subtotal and total rows close a schedule section.
		if n := fuzzy.Normalize(desc); n == "total" || n == "subtotal" || n == "grandtotal" {
			continue
		}

		items = append(items, lineitem.LineItem{
			ItemNumber:    get(ColItemNumber),
			Description:   desc,
			Quantity:      parseQuantity(get(ColQuantity)),
			Unit:          get(ColUnit),
			Category:      get(ColCategory),
			Source:        source,
			SpecReference: get(ColSpec),
			Notes:         get(ColNotes),
			UnitPrice:     parseQuantity(get(ColUnitPrice)),
			TotalPrice:    parseQuantity(get(ColTotalPrice)),
		})
	}
	return items
}
