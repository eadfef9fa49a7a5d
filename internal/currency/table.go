// Package currency converts and formats monetary amounts against a rate table
// pivoted on a single base currency, and keeps the process-wide rate state.
package currency

import (
	"math"
	"sort"
	"strings"
)

// DefaultBase is used when a table is built without a base currency.
const DefaultBase = "USD"

// Code canonicalizes a currency code for lookups. Codes are not validated
// against an ISO list; any non-empty string is carried through.
func Code(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Table holds exchange rates relative to Base. Rates[Base] is always 1 for
// tables built with NewTable. A code missing from Rates is unconvertible.
type Table struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// NewTable builds a table from raw rates. Non-finite and non-positive rates
// are dropped and the base rate is forced to 1.
func NewTable(base string, rates map[string]float64) Table {
	base = Code(base)
	if base == "" {
		base = DefaultBase
	}

	clean := make(map[string]float64, len(rates)+1)
	for code, rate := range rates {
		code = Code(code)
		if code == "" || !validRate(rate) {
			continue
		}
		clean[code] = rate
	}
	clean[base] = 1

	return Table{Base: base, Rates: clean}
}

// Rate returns the base-relative rate for code.
func (t Table) Rate(code string) (float64, bool) {
	rate, ok := t.Rates[Code(code)]
	if !ok || !validRate(rate) {
		return 0, false
	}
	return rate, true
}

// Has reports whether code is convertible with this table.
func (t Table) Has(code string) bool {
	_, ok := t.Rate(code)
	return ok
}

// Codes returns the convertible codes in sorted order.
func (t Table) Codes() []string {
	codes := make([]string, 0, len(t.Rates))
	for code, rate := range t.Rates {
		if validRate(rate) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

func validRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}
