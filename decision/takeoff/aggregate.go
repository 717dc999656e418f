// Package takeoff aggregates plan-sheet quantity takeoffs and totals
// estimator line items.
package takeoff

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"bid-review/decision/lineitem"
	"bid-review/pkg/fuzzy"
	"bid-review/pkg/units"
)

// AggregatedItem is the combined quantity of every takeoff entry that shares a
// normalized description and unit.
type AggregatedItem struct {
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	Sources     []string        `json:"sources"`
	SourceCount int             `json:"source_count"`
}

// LineItem converts the aggregate back into a line item so it can be used as
// the plan side of a quantity comparison.
func (a AggregatedItem) LineItem() lineitem.LineItem {
	return lineitem.LineItem{
		Description: a.Description,
		Quantity:    a.Quantity,
		Unit:        a.Unit,
		Category:    a.Category,
		Subcategory: a.Subcategory,
		Source:      strings.Join(a.Sources, ", "),
	}
}

type groupKey struct {
	desc string
	unit string
}

// Aggregate groups items by normalized description and upper-cased unit and
// sums their quantities. The first item of a group provides its category,
// subcategory, description and unit spelling. Output is ordered by category
// then description.
func Aggregate(items []lineitem.LineItem) []AggregatedItem {
	index := make(map[groupKey]int)
	out := make([]AggregatedItem, 0)
	seen := make([]map[string]bool, 0)

	for _, item := range items {
		k := groupKey{desc: fuzzy.Normalize(item.Description), unit: units.Key(item.Unit)}
		gi, ok := index[k]
		if !ok {
			gi = len(out)
			index[k] = gi
			out = append(out, AggregatedItem{
				Category:    item.Category,
				Subcategory: item.Subcategory,
				Description: item.Description,
				Quantity:    decimal.Zero,
				Unit:        item.Unit,
				Sources:     make([]string, 0),
			})
			seen = append(seen, make(map[string]bool))
		}

		agg := &out[gi]
		agg.Quantity = agg.Quantity.Add(item.Quantity)
		if item.Source != "" && !seen[gi][item.Source] {
			seen[gi][item.Source] = true
			agg.Sources = append(agg.Sources, item.Source)
		}
	}

	for i := range out {
		out[i].Quantity = out[i].Quantity.Round(2)
		out[i].SourceCount = len(out[i].Sources)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Description < out[j].Description
	})
	return out
}

// LineItems converts aggregates into line items.
func LineItems(aggs []AggregatedItem) []lineitem.LineItem {
	items := make([]lineitem.LineItem, len(aggs))
	for i, a := range aggs {
		items[i] = a.LineItem()
	}
	return items
}
