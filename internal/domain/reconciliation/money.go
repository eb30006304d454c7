package reconciliation

import (
	"fmt"
	"math"

	"github.com/wms/backend/internal/domain/shared"
)

// Bounds beyond which a float can no longer be represented as int64 cents.
const (
	maxCentsSafe = float64(math.MaxInt64) / 100.0
	minCentsSafe = float64(math.MinInt64) / 100.0
)

// ToCents converts a floating unit cost into integer cents, rounding half
// away from zero. It returns a validation error when the magnitude would
// overflow the integer currency representation, or when the input is not a
// finite number. Ledger writes only ever see the integer result; floating
// error never propagates past this function.
func ToCents(value float64) (int64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, shared.NewValidationError(fmt.Sprintf("Value %v is not a valid currency amount", value))
	}
	if value > maxCentsSafe || value < minCentsSafe {
		return 0, shared.NewValidationError(fmt.Sprintf("Value %v is out of range for currency conversion", value))
	}
	return int64(math.Round(value * 100)), nil
}
