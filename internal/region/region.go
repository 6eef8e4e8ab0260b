// Package region is the static catalog of storefront regions the service
// tracks. The set is closed: anything outside it is rejected at config load
// and at the command layer.
package region

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Region describes one regional storefront.
type Region struct {
	Code     string
	Name     string
	Currency string // ISO 4217
	Symbol   string
	Flag     string
	StoreURL string

	// Decimal and group separators used by the storefront when it renders
	// prices ("1.299,00" vs "1,299.00").
	DecimalSep rune
	GroupSep   rune
}

// --------------------------------------------------------------------------
// Catalog
// --------------------------------------------------------------------------

var catalog = map[string]Region{
	"US": {Code: "US", Name: "United States", Currency: "USD", Symbol: "$", Flag: "🇺🇸",
		StoreURL: "https://store.playstation.com/en-us", DecimalSep: '.', GroupSep: ','},
	"IL": {Code: "IL", Name: "Israel", Currency: "ILS", Symbol: "₪", Flag: "🇮🇱",
		StoreURL: "https://store.playstation.com/en-il", DecimalSep: '.', GroupSep: ','},
	"IN": {Code: "IN", Name: "India", Currency: "INR", Symbol: "₹", Flag: "🇮🇳",
		StoreURL: "https://store.playstation.com/en-in", DecimalSep: '.', GroupSep: ','},
	"GB": {Code: "GB", Name: "United Kingdom", Currency: "GBP", Symbol: "£", Flag: "🇬🇧",
		StoreURL: "https://store.playstation.com/en-gb", DecimalSep: '.', GroupSep: ','},
	"DE": {Code: "DE", Name: "Germany", Currency: "EUR", Symbol: "€", Flag: "🇩🇪",
		StoreURL: "https://store.playstation.com/de-de", DecimalSep: ',', GroupSep: '.'},
	"FR": {Code: "FR", Name: "France", Currency: "EUR", Symbol: "€", Flag: "🇫🇷",
		StoreURL: "https://store.playstation.com/fr-fr", DecimalSep: ',', GroupSep: ' '},
	"BR": {Code: "BR", Name: "Brazil", Currency: "BRL", Symbol: "R$", Flag: "🇧🇷",
		StoreURL: "https://store.playstation.com/pt-br", DecimalSep: ',', GroupSep: '.'},
	"JP": {Code: "JP", Name: "Japan", Currency: "JPY", Symbol: "¥", Flag: "🇯🇵",
		StoreURL: "https://store.playstation.com/ja-jp", DecimalSep: '.', GroupSep: ','},
	"AU": {Code: "AU", Name: "Australia", Currency: "AUD", Symbol: "A$", Flag: "🇦🇺",
		StoreURL: "https://store.playstation.com/en-au", DecimalSep: '.', GroupSep: ','},
}

// Lookup returns the region for a code. Codes are case-insensitive.
func Lookup(code string) (Region, bool) {
	r, ok := catalog[strings.ToUpper(strings.TrimSpace(code))]
	return r, ok
}

// MustLookup is Lookup for codes already validated at startup.
func MustLookup(code string) Region {
	r, ok := Lookup(code)
	if !ok {
		panic(fmt.Sprintf("region: unknown code %q", code))
	}
	return r
}

// Valid reports whether code is in the catalog.
func Valid(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// All returns every region ordered by code.
func All() []Region {
	out := make([]Region, 0, len(catalog))
	for _, r := range catalog {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Codes returns every region code ordered.
func Codes() []string {
	all := All()
	codes := make([]string, len(all))
	for i, r := range all {
		codes[i] = r.Code
	}
	return codes
}

// Validate checks a configured list of region codes and returns them
// upper-cased. Empty lists and unknown codes are errors.
func Validate(codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no regions configured")
	}
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	var unknown []string
	for _, c := range codes {
		r, ok := Lookup(c)
		if !ok {
			unknown = append(unknown, c)
			continue
		}
		if seen[r.Code] {
			continue
		}
		seen[r.Code] = true
		out = append(out, r.Code)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown region codes %v (supported: %s)",
			unknown, strings.Join(Codes(), ", "))
	}
	return out, nil
}

// SearchURL builds the storefront search link for a title.
func (r Region) SearchURL(title string) string {
	return r.StoreURL + "/search/" + url.PathEscape(title)
}
