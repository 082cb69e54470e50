// Package units provides the weight units the host tool can display.
package units

import "strings"

// Unit constants. The plate itself always works in pounds.
const (
	LBS = "lbs"
	KG  = "kg"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{LBS, KG}

const kgPerLb = 0.45359237

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertWeight converts a weight in pounds to the target units; unknown
// units leave it in pounds.
func ConvertWeight(lbs float64, targetUnits string) float64 {
	switch targetUnits {
	case KG:
		return lbs * kgPerLb
	default:
		return lbs
	}
}
