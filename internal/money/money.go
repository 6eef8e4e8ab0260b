// Package money formats and converts integer minor-unit amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// MinorUnits returns the number of decimal places of an ISO currency code.
func MinorUnits(code string) (int, error) {
	cur, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("unknown currency %q", code)
	}
	scale, _ := currency.Standard.Rounding(cur)
	return scale, nil
}

// Decimal converts minor units to a decimal amount ("2999" USD → 29.99).
func Decimal(amount int64, code string) decimal.Decimal {
	scale, err := MinorUnits(code)
	if err != nil {
		scale = 2
	}
	return decimal.New(amount, int32(-scale))
}

// FromDecimal converts a decimal amount to minor units, rounding half away
// from zero.
func FromDecimal(d decimal.Decimal, code string) int64 {
	scale, err := MinorUnits(code)
	if err != nil {
		scale = 2
	}
	return d.Shift(int32(scale)).Round(0).IntPart()
}

// Format renders minor units with the currency's scale.
func Format(amount int64, code string) string {
	scale, err := MinorUnits(code)
	if err != nil {
		scale = 2
	}
	return decimal.New(amount, int32(-scale)).StringFixed(int32(scale))
}

// FormatWithSymbol prefixes the formatted amount with symbol.
func FormatWithSymbol(amount int64, code, symbol string) string {
	return symbol + Format(amount, code)
}
