// Package money holds the shared decimal rules for currency amounts.
package money

import "github.com/shopspring/decimal"

var (
	// CashIncrement is the smallest physical cash denomination.
	CashIncrement = decimal.RequireFromString("0.05")
	// PaymentTolerance is the residual balance under which an order counts as paid.
	PaymentTolerance = decimal.RequireFromString("0.03")

	hundred = decimal.NewFromInt(100)
)

// Round2 rounds half away from zero to whole cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundToIncrement rounds d to the nearest multiple of inc, ties away from zero.
func RoundToIncrement(d, inc decimal.Decimal) decimal.Decimal {
	if inc.Sign() <= 0 {
		return Round2(d)
	}
	steps := d.Div(inc).Round(0)
	return Round2(steps.Mul(inc))
}

// RoundCash rounds to the nearest nickel.
func RoundCash(d decimal.Decimal) decimal.Decimal {
	return RoundToIncrement(d, CashIncrement)
}

// ToCents converts a dollar amount into integer cents, rounding to the cent first.
func ToCents(d decimal.Decimal) int64 {
	return Round2(d).Mul(hundred).IntPart()
}

// FromCents converts integer cents into a dollar amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Percent returns pct percent of d without rounding.
func Percent(d, pct decimal.Decimal) decimal.Decimal {
	return d.Mul(pct).Div(hundred)
}

func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampZero floors negative amounts at zero.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	return Max(d, decimal.Zero)
}

// Sum adds the provided amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
