package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/oshri1997/Deal-Hunter/internal/money"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("unparseable observation")

// ParseError explains why one raw observation was dropped.
type ParseError struct {
	Title  string
	Field  string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q for %q: %s", e.Field, e.Value, e.Title, e.Reason)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

var hundred = decimal.NewFromInt(100)

// ParsePrice converts a storefront price string ("$29.99", "₹1,499.00",
// "59,99 €") into minor units of code using the region's separators.
func ParsePrice(text string, r region.Region, code string) (int64, error) {
	scale, err := money.MinorUnits(code)
	if err != nil {
		return 0, err
	}

	var b strings.Builder
	seenDecimal := false
	for _, c := range strings.TrimSpace(text) {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == r.DecimalSep:
			if seenDecimal {
				return 0, fmt.Errorf("multiple decimal separators")
			}
			seenDecimal = true
			b.WriteByte('.')
		case c == r.GroupSep, unicode.IsSpace(c):
		case c == '-' || c == '−':
			return 0, fmt.Errorf("negative price")
		case unicode.IsDigit(c):
			return 0, fmt.Errorf("unsupported digit %q", c)
		}
	}
	digits := strings.TrimSuffix(b.String(), ".")
	if strings.HasPrefix(digits, ".") {
		digits = "0" + digits
	}
	if digits == "" {
		return 0, fmt.Errorf("no digits")
	}

	d, err := decimal.NewFromString(digits)
	if err != nil {
		return 0, fmt.Errorf("decimal: %w", err)
	}
	return d.Shift(int32(scale)).Round(0).IntPart(), nil
}

// discountOf returns the whole-percent discount of price against list.
func discountOf(price, list int64) int {
	if list <= 0 || price >= list {
		return 0
	}
	ratio := decimal.NewFromInt(price).Div(decimal.NewFromInt(list))
	return int(decimal.NewFromInt(1).Sub(ratio).Mul(hundred).Round(0).IntPart())
}

// listFromDiscount derives a list price from a sale price and percent.
func listFromDiscount(price int64, pct int) int64 {
	if pct <= 0 || pct >= 100 {
		return price
	}
	remaining := decimal.NewFromInt(int64(100 - pct))
	return decimal.NewFromInt(price).Mul(hundred).Div(remaining).Round(0).IntPart()
}
