package cashdrawer

import "github.com/angelmondragon/settlez-backend/pkg/types"

// Denominations maps every countable key to its value in cents. Rolls are
// pre-wrapped coin rolls counted as one unit.
var Denominations = map[string]int64{
	"nickel":  5,
	"dime":    10,
	"quarter": 25,
	"loonie":  100,
	"toonie":  200,
	"five":    500,
	"ten":     1000,
	"twenty":  2000,
	"fifty":   5000,
	"hundred": 10000,

	"nickel_roll":  200,
	"dime_roll":    500,
	"quarter_roll": 1000,
	"loonie_roll":  2500,
	"toonie_roll":  5000,
}

// CalculateTotalCents sums count * value over known denominations. Unknown
// keys and non-positive counts contribute nothing.
func CalculateTotalCents(counts types.DenominationCounts) int64 {
	var total int64
	for key, count := range counts {
		value, ok := Denominations[key]
		if !ok || count <= 0 {
			continue
		}
		total += value * int64(count)
	}
	return total
}
