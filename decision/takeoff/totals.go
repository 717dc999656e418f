package takeoff

import (
	"github.com/shopspring/decimal"

	"bid-review/decision/lineitem"
)

// DefaultCategory is used for items without a category.
const DefaultCategory = "general"

// CategoryTotal summarizes one cost category.
type CategoryTotal struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Items    int             `json:"items"`
}

// CostTotals is the cost rollup of an estimate.
type CostTotals struct {
	MaterialTotal  decimal.Decimal          `json:"material_total"`
	LaborTotal     decimal.Decimal          `json:"labor_total"`
	EquipmentTotal decimal.Decimal          `json:"equipment_total"`
	Subtotal       decimal.Decimal          `json:"subtotal"`
	ByCategory     map[string]CategoryTotal `json:"by_category"`
}

// Totals rolls up material, labor and equipment costs (unit cost times
// quantity) and the priced subtotal of the items.
func Totals(items []lineitem.LineItem) CostTotals {
	t := CostTotals{
		MaterialTotal:  decimal.Zero,
		LaborTotal:     decimal.Zero,
		EquipmentTotal: decimal.Zero,
		Subtotal:       decimal.Zero,
		ByCategory:     make(map[string]CategoryTotal),
	}

	for _, item := range items {
		if c := item.Costs; c != nil {
			t.MaterialTotal = t.MaterialTotal.Add(c.MaterialUnitCost.Mul(item.Quantity))
			t.LaborTotal = t.LaborTotal.Add(c.LaborUnitCost.Mul(item.Quantity))
			t.EquipmentTotal = t.EquipmentTotal.Add(c.EquipmentUnitCost.Mul(item.Quantity))
		}
		t.Subtotal = t.Subtotal.Add(item.TotalPrice)

		cat := item.Category
		if cat == "" {
			cat = DefaultCategory
		}
		ct, ok := t.ByCategory[cat]
		if !ok {
			ct.Subtotal = decimal.Zero
		}
		ct.Subtotal = ct.Subtotal.Add(item.TotalPrice)
		ct.Items++
		t.ByCategory[cat] = ct
	}

	t.MaterialTotal = t.MaterialTotal.Round(2)
	t.LaborTotal = t.LaborTotal.Round(2)
	t.EquipmentTotal = t.EquipmentTotal.Round(2)
	t.Subtotal = t.Subtotal.Round(2)
	return t
}
