package pricing

import "strings"

// TokensPerK is the size of the "1K" token unit.
const TokensPerK = 1024

// Unit is a token count a display price is quoted per.
type Unit string

const (
	Unit1K Unit = "1K"
	Unit1M Unit = "1M"
)

// UnitLabel is the human readable unit attached to a rate.
type UnitLabel string

const (
	UnitLabel1K       UnitLabel = "1K Tokens"
	UnitLabel1M       UnitLabel = "1M Tokens"
	UnitLabelRequests UnitLabel = "Requests"
)

// ParseUnit accepts "1K" or "1M" in any case. Anything else yields Unit1M
// and false.
func ParseUnit(s string) (Unit, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1K":
		return Unit1K, true
	case "1M":
		return Unit1M, true
	default:
		return Unit1M, false
	}
}

// Label returns the display label for u.
func (u Unit) Label() UnitLabel {
	if u == Unit1K {
		return UnitLabel1K
	}
	return UnitLabel1M
}

// ConvertTokenUnit converts a per-million price to the target unit.
func ConvertTokenUnit(pricePerMillion float64, target Unit) float64 {
	if target == Unit1K {
		return pricePerMillion / TokensPerK
	}
	return pricePerMillion
}

// perMillion converts a tier rate quoted per label into a per-million rate.
func perMillion(rate float64, label UnitLabel) float64 {
	if label == UnitLabel1K {
		return rate * TokensPerK
	}
	return rate
}
