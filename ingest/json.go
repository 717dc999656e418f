// Package ingest decodes line items and AI findings from JSON documents, model
// responses and spreadsheets into validated domain values.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"bid-review/decision/lineitem"
	bierrors "bid-review/pkg/errors"
)

// MaxRawLength bounds the raw text kept from a malformed response.
const MaxRawLength = 2000

// ParseResult is either a decoded value or the raw text that could not be
// decoded.
type ParseResult[T any] struct {
	Value     T
	Malformed bool
	Raw       string
	Err       error
}

// OK reports whether the value was decoded.
func (r ParseResult[T]) OK() bool {
	return !r.Malformed && r.Err == nil
}

func malformed[T any](text, source string, cause error) ParseResult[T] {
	raw := text
	if len(raw) > MaxRawLength {
		cut := MaxRawLength
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
	}
	return ParseResult[T]{
		Malformed: true,
		Raw:       raw,
		Err:       bierrors.NewMalformedResponseError(source, cause),
	}
}

var validate = validator.New()

// =============================================================================
// RESPONSE CLEANUP
// =============================================================================

// StripFences removes a surrounding Markdown code fence and its language tag.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			tag := strings.TrimSpace(s[:nl])
			if tag == "" || !strings.ContainsAny(tag, "{[") {
				s = s[nl+1:]
			}
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSON returns the JSON document in a model response. The fenced text is
// tried first, then the outermost {...} span.
func ExtractJSON(text string) ([]byte, error) {
	s := StripFences(text)
	if s == "" {
		return nil, fmt.Errorf("empty response")
	}
	if json.Valid([]byte(s)) {
		return []byte(s), nil
	}

	start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		span := []byte(text[start : end+1])
		if json.Valid(span) {
			return span, nil
		}
	}
	return nil, fmt.Errorf("no JSON document found")
}

// =============================================================================
// LINE ITEMS
// =============================================================================

type rawCost struct {
	UnitCost any `json:"unit_cost"`
}

type rawCosts struct {
	MaterialUnitCost  any `json:"material_unit_cost"`
	LaborUnitCost     any `json:"labor_unit_cost"`
	EquipmentUnitCost any `json:"equipment_unit_cost"`
}

type rawItem struct {
	ItemNumber    any       `json:"item_number"`
	Description   any       `json:"description"`
	Quantity      any       `json:"quantity"`
	Unit          any       `json:"unit"`
	Category      any       `json:"category"`
	Subcategory   any       `json:"subcategory"`
	Source        any       `json:"source"`
	SpecReference any       `json:"spec_reference"`
	Notes         any       `json:"notes"`
	UnitPrice     any       `json:"unit_price"`
	TotalPrice    any       `json:"total_price"`
	Costs         *rawCosts `json:"costs"`
	Material      *rawCost  `json:"material"`
	Labor         *rawCost  `json:"labor"`
	Equipment     *rawCost  `json:"equipment"`
}

func (r rawItem) lineItem(source string) lineitem.LineItem {
	item := lineitem.LineItem{
		ItemNumber:    text(r.ItemNumber),
		Description:   text(r.Description),
		Quantity:      Quantity(r.Quantity),
		Unit:          text(r.Unit),
		Category:      text(r.Category),
		Subcategory:   text(r.Subcategory),
		Source:        text(r.Source),
		SpecReference: text(r.SpecReference),
		Notes:         text(r.Notes),
		UnitPrice:     Quantity(r.UnitPrice),
		TotalPrice:    Quantity(r.TotalPrice),
	}
	if item.Source == "" {
		item.Source = source
	}

	switch {
	case r.Costs != nil:
		item.Costs = &lineitem.CostBreakdown{
			MaterialUnitCost:  Quantity(r.Costs.MaterialUnitCost),
			LaborUnitCost:     Quantity(r.Costs.LaborUnitCost),
			EquipmentUnitCost: Quantity(r.Costs.EquipmentUnitCost),
		}
	case r.Material != nil || r.Labor != nil || r.Equipment != nil:
		item.Costs = &lineitem.CostBreakdown{
			MaterialUnitCost:  unitCost(r.Material),
			LaborUnitCost:     unitCost(r.Labor),
			EquipmentUnitCost: unitCost(r.Equipment),
		}
	}
	return item
}

func unitCost(c *rawCost) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	return Quantity(c.UnitCost)
}

type itemsDocument struct {
	LineItems         []rawItem `json:"line_items"`
	CombinedLineItems []rawItem `json:"combined_line_items"`
	Items             []rawItem `json:"items"`
}

// DecodeItems decodes a JSON array of line items, or an object holding one
// under "line_items", "combined_line_items" or "items". Malformed quantities
// decode to zero.
func DecodeItems(data []byte, source string) ([]lineitem.LineItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, bierrors.NewEmptyDocumentError(source)
	}

	var raws []rawItem
	if data[0] == '[' {
		if err := decode(data, &raws); err != nil {
			return nil, bierrors.NewParseError(source, err)
		}
	} else {
		var doc itemsDocument
		if err := decode(data, &doc); err != nil {
			return nil, bierrors.NewParseError(source, err)
		}
		switch {
		case len(doc.LineItems) > 0:
			raws = doc.LineItems
		case len(doc.CombinedLineItems) > 0:
			raws = doc.CombinedLineItems
		default:
			raws = doc.Items
		}
	}

	items := make([]lineitem.LineItem, 0, len(raws))
	for i, r := range raws {
		item := r.lineItem(source)
		if err := validate.Struct(item); err != nil {
			return nil, bierrors.NewValidationError(source, fmt.Errorf("line item %d: %w", i+1, err))
		}
		items = append(items, item)
	}
	return items, nil
}

// ParseLineItems decodes the line items in a model response.
func ParseLineItems(text, source string) ParseResult[[]lineitem.LineItem] {
	data, err := ExtractJSON(text)
	if err != nil {
		return malformed[[]lineitem.LineItem](text, source, err)
	}
	items, err := DecodeItems(data, source)
	if err != nil {
		if bierrors.Code(err) == bierrors.ErrCodeParseFailed {
			return malformed[[]lineitem.LineItem](text, source, err)
		}
		return ParseResult[[]lineitem.LineItem]{Err: err}
	}
	return ParseResult[[]lineitem.LineItem]{Value: items}
}

// =============================================================================
// FINDINGS
// =============================================================================

type rawFinding struct {
	CriticalIssues  []any `json:"critical_issues"`
	Warnings        []any `json:"warnings"`
	Recommendations []any `json:"recommendations"`
}

// DecodeFindings decodes an AI findings document. Entries may be strings or
// objects carrying the text under a common key.
func DecodeFindings(data []byte, source string) (lineitem.Finding, error) {
	var raw rawFinding
	if err := decode(bytes.TrimSpace(data), &raw); err != nil {
		return lineitem.Finding{}, bierrors.NewParseError(source, err)
	}
	return lineitem.Finding{
		CriticalIssues:  texts(raw.CriticalIssues),
		Warnings:        texts(raw.Warnings),
		Recommendations: texts(raw.Recommendations),
	}, nil
}

// ParseFindings decodes the findings in a model response.
func ParseFindings(text, source string) ParseResult[lineitem.Finding] {
	data, err := ExtractJSON(text)
	if err != nil {
		return malformed[lineitem.Finding](text, source, err)
	}
	f, err := DecodeFindings(data, source)
	if err != nil {
		return malformed[lineitem.Finding](text, source, err)
	}
	return ParseResult[lineitem.Finding]{Value: f}
}

// =============================================================================
// SCALARS
// =============================================================================

var quantityPattern = regexp.MustCompile(`^\$?\s*(-?[0-9,]*\.?[0-9]+)\s*[A-Za-z.]*$`)

// Quantity converts a loosely typed JSON or cell value to a decimal. Values
// that are absent or not numeric yield zero.
func Quantity(v any) decimal.Decimal {
	switch x := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case string:
		return parseQuantity(x)
	}
	return decimal.Zero
}

func parseQuantity(s string) decimal.Decimal {
	m := quantityPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}

var textKeys = []string{"text", "issue", "description", "message", "warning", "recommendation", "action"}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case map[string]any:
		for _, k := range textKeys {
			if s, ok := x[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func texts(vs []any) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s := text(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
