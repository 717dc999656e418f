// Package lineitem defines the quantified work items and AI findings exchanged
// between the ingestion boundary and the decision engines.
package lineitem

import (
	"github.com/shopspring/decimal"

	"bid-review/pkg/fuzzy"
)

// LineItem is one quantified unit of work in a bid schedule, plan takeoff or
// RFP requirement list.
type LineItem struct {
	ItemNumber  string          `json:"item_number,omitempty"`
	Description string          `json:"description" validate:"max=1000"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty" validate:"max=32"`
	Category    string          `json:"category,omitempty"`
	Subcategory string          `json:"subcategory,omitempty"`
	Source      string          `json:"source,omitempty"`

	SpecReference string `json:"spec_reference,omitempty"`
	Notes         string `json:"notes,omitempty"`

	// Pricing is carried for cost reporting only and never used for matching.
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Costs      *CostBreakdown  `json:"costs,omitempty"`
}

// CostBreakdown splits a unit price into material, labor and equipment.
type CostBreakdown struct {
	MaterialUnitCost  decimal.Decimal `json:"material_unit_cost"`
	LaborUnitCost     decimal.Decimal `json:"labor_unit_cost"`
	EquipmentUnitCost decimal.Decimal `json:"equipment_unit_cost"`
}

// Key returns the normalized description used for matching.
func (li LineItem) Key() string {
	return fuzzy.Normalize(li.Description)
}

// Finding is the structured output of the AI analysis collaborator.
type Finding struct {
	CriticalIssues  []string `json:"critical_issues"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// Clone returns a copy whose slices do not alias f.
func (f Finding) Clone() Finding {
	return Finding{
		CriticalIssues:  append([]string(nil), f.CriticalIssues...),
		Warnings:        append([]string(nil), f.Warnings...),
		Recommendations: append([]string(nil), f.Recommendations...),
	}
}
