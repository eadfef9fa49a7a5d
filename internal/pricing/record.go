package pricing

import (
	"encoding/json"

	"pricecatalog/internal/currency"
)

// DefaultCurrency is used for per-call pricing and when no currency is given.
const DefaultCurrency = currency.DefaultBase

// Record is a canonical pricing record. The concrete type is one of Free,
// TokenBased, PerCall, Tiered or Unknown.
type Record interface {
	Kind() Kind
	isRecord()
}

// Free pricing.
type Free struct{}

// TokenBased pricing. All amounts are per one million tokens.
type TokenBased struct {
	Input        *currency.Money `json:"input,omitempty"`
	Cached       *currency.Money `json:"cached,omitempty"`
	Output       *currency.Money `json:"output,omitempty"`
	PerUnitLabel UnitLabel       `json:"per_unit_label"`
	Currency     string          `json:"currency"`
}

// Resolvable reports whether at least one rate is present.
func (r TokenBased) Resolvable() bool {
	return r.Input != nil || r.Cached != nil || r.Output != nil
}

// PerCall pricing. Price is nil when the payload has no usable price.
type PerCall struct {
	Price    *currency.Money `json:"price,omitempty"`
	Currency string          `json:"currency"`
}

// Tiered pricing in payload order. All tier rates share Currency.
type Tiered struct {
	Tiers    []Tier `json:"tiers"`
	Currency string `json:"currency"`
}

// Unknown keeps an unrecognized tag and its payload untouched.
type Unknown struct {
	RawTag     string          `json:"raw_tag"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

func (Free) Kind() Kind       { return KindFree }
func (TokenBased) Kind() Kind { return KindToken }
func (PerCall) Kind() Kind    { return KindCall }
func (Tiered) Kind() Kind     { return KindTiered }
func (Unknown) Kind() Kind    { return KindUnknown }

func (Free) isRecord()       {}
func (TokenBased) isRecord() {}
func (PerCall) isRecord()    {}
func (Tiered) isRecord()     {}
func (Unknown) isRecord()    {}

// Billing is how a tier is charged.
type Billing string

const (
	BillingToken    Billing = "token"
	BillingRequests Billing = "requests"
)

// Tier is one priced tranche. Token tiers use Input, Cached and Output;
// request tiers use PricePerUnit. Rates are expressed per Unit.
type Tier struct {
	Name         string    `json:"name"`
	Billing      Billing   `json:"billing"`
	Unit         UnitLabel `json:"unit"`
	Input        *float64  `json:"input,omitempty"`
	Cached       *float64  `json:"cached,omitempty"`
	Output       *float64  `json:"output,omitempty"`
	PricePerUnit *float64  `json:"price_per_unit,omitempty"`
}

// Resolved reports whether a tier carries any rate.
func (t Tier) Resolved() bool {
	if t.Billing == BillingRequests {
		return t.PricePerUnit != nil
	}
	return t.Input != nil || t.Cached != nil || t.Output != nil
}

// Resolved reports whether a record carries usable pricing. Unknown records
// are never resolved.
func Resolved(r Record) bool {
	switch rec := r.(type) {
	case Free:
		return true
	case TokenBased:
		return rec.Resolvable()
	case PerCall:
		return rec.Price != nil
	case Tiered:
		return len(rec.Tiers) > 0
	default:
		return false
	}
}
