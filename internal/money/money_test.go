package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		amount int64
		code   string
		want   string
	}{
		{2999, "USD", "29.99"},
		{149900, "INR", "1499.00"},
		{1980, "JPY", "1980"},
		{5, "ILS", "0.05"},
	}
	for _, tc := range cases {
		if got := Format(tc.amount, tc.code); got != tc.want {
			t.Fatalf("Format(%d, %s) = %s, want %s", tc.amount, tc.code, got, tc.want)
		}
	}
}

func TestMinorUnitsUnknown(t *testing.T) {
	if _, err := MinorUnits("XYZ1"); err == nil {
		t.Fatalf("expected error for bogus currency")
	}
}

func TestFromDecimalRounds(t *testing.T) {
	d := decimal.RequireFromString("10.005")
	if got := FromDecimal(d, "USD"); got != 1001 {
		t.Fatalf("got %d want 1001", got)
	}
	if got := FromDecimal(d, "JPY"); got != 10 {
		t.Fatalf("got %d want 10", got)
	}
}
