// Package units provides the pay-item units used on construction bid forms.
package units

import "strings"

// Unit represents a pay-item unit of measure.
type Unit string

const (
	// Length units
	UnitLF Unit = "LF"

	// Area units
	UnitSF Unit = "SF"
	UnitSY Unit = "SY"
	UnitAC Unit = "AC"

	// Volume and weight units
	UnitCY  Unit = "CY"
	UnitTON Unit = "TON"
	UnitGAL Unit = "GAL"

	// Count units
	UnitEA Unit = "EA"
	UnitLS Unit = "LS"
)

var names = map[Unit]string{
	UnitLF:  "linear feet",
	UnitSF:  "square feet",
	UnitSY:  "square yards",
	UnitAC:  "acres",
	UnitCY:  "cubic yards",
	UnitTON: "tons",
	UnitGAL: "gallons",
	UnitEA:  "each",
	UnitLS:  "lump sum",
}

// Key returns the grouping key of a unit. Units compare case-insensitively
// and are otherwise taken literally.
func Key(unit string) string {
	return strings.ToUpper(unit)
}

// Known reports whether the unit is one of the standard pay-item units.
func Known(unit string) bool {
	_, ok := names[Unit(Key(unit))]
	return ok
}

// Name returns the long name of a unit, or the unit itself when unknown.
func Name(unit string) string {
	if n, ok := names[Unit(Key(unit))]; ok {
		return n
	}
	return unit
}
