package pricing

import (
	"strings"

	"pricecatalog/internal/currency"
)

// Variant selects the presentation layout.
type Variant string

const (
	VariantCompact  Variant = "compact"
	VariantDetailed Variant = "detailed"
)

// ParseVariant accepts "compact" or "detailed". Anything else yields
// VariantCompact and false.
func ParseVariant(s string) (Variant, bool) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantCompact:
		return VariantCompact, true
	case VariantDetailed:
		return VariantDetailed, true
	default:
		return VariantCompact, false
	}
}

// Display strings.
const (
	LabelInput      = "Input"
	LabelCached     = "Cached input"
	LabelOutput     = "Output"
	LabelPerCall    = "Per call"
	LabelPerRequest = "Per request"
	LabelPrice      = "Price"
	BadgeFree       = "Free"
	BadgeCustom     = "Custom"
	ValueNoRate     = "No rate"
	ValueCustom     = "Custom"
	NoteUnavailable = "Pricing unavailable"
	NoteCustom      = "Custom pricing available, see details"
)

// Chip is one labeled value in the compact layout.
type Chip struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Card is one labeled value with its unit in the detailed layout.
type Card struct {
	Label string    `json:"label"`
	Value string    `json:"value"`
	Unit  UnitLabel `json:"unit"`
}

// TierView is a tier with its rates rendered.
type TierView struct {
	Name    string    `json:"name"`
	Billing Billing   `json:"billing"`
	Unit    UnitLabel `json:"unit"`
	Rates   []Chip    `json:"rates"`
}

// Presentation is the rendered form of a record.
type Presentation struct {
	Kind        Kind       `json:"kind"`
	Variant     Variant    `json:"variant"`
	Badge       string     `json:"badge,omitempty"`
	Chips       []Chip     `json:"chips,omitempty"`
	Cards       []Card     `json:"cards,omitempty"`
	Tiers       []TierView `json:"tiers,omitempty"`
	Note        string     `json:"note,omitempty"`
	Unavailable bool       `json:"unavailable,omitempty"`
}

// Format renders a record in display currency and token unit. Amounts that
// cannot be converted are shown in their own currency. Format never fails;
// records without usable rates render as unavailable.
func Format(rec Record, display string, table currency.Table, unit Unit, variant Variant) Presentation {
	if variant != VariantDetailed {
		variant = VariantCompact
	}
	if unit != Unit1K {
		unit = Unit1M
	}

	f := formatter{display: display, table: table, unit: unit, variant: variant}
	switch r := rec.(type) {
	case Free:
		return Presentation{Kind: KindFree, Variant: variant, Badge: BadgeFree}
	case TokenBased:
		return f.token(r)
	case PerCall:
		return f.call(r)
	case Tiered:
		return f.tiered(r)
	case Unknown:
		return f.unknown(r)
	default:
		return f.unavailable(KindUnknown)
	}
}

type formatter struct {
	display string
	table   currency.Table
	unit    Unit
	variant Variant
}

func (f formatter) unavailable(kind Kind) Presentation {
	return Presentation{Kind: kind, Variant: f.variant, Note: NoteUnavailable, Unavailable: true}
}

// tokenRate converts a per-million amount to display currency and unit.
func (f formatter) tokenRate(m currency.Money) string {
	c := currency.Convert(m.Amount, m.Currency, f.display, f.table)
	return currency.Format(ConvertTokenUnit(c.Amount, f.unit), c.Currency)
}

func (f formatter) amount(m currency.Money) string {
	c := currency.Convert(m.Amount, m.Currency, f.display, f.table)
	return currency.Format(c.Amount, c.Currency)
}

func (f formatter) add(p *Presentation, label, value string, unit UnitLabel) {
	if f.variant == VariantDetailed {
		p.Cards = append(p.Cards, Card{Label: label, Value: value, Unit: unit})
		return
	}
	p.Chips = append(p.Chips, Chip{Label: label, Value: value})
}

func (f formatter) token(r TokenBased) Presentation {
	if !r.Resolvable() {
		return f.unavailable(KindToken)
	}

	p := Presentation{Kind: KindToken, Variant: f.variant}
	rates := []struct {
		label string
		money *currency.Money
	}{
		{LabelInput, r.Input},
		{LabelCached, r.Cached},
		{LabelOutput, r.Output},
	}
	for _, rate := range rates {
		if rate.money == nil {
			continue
		}
		f.add(&p, rate.label, f.tokenRate(*rate.money), f.unit.Label())
	}
	return p
}

func (f formatter) call(r PerCall) Presentation {
	if r.Price == nil {
		return f.unavailable(KindCall)
	}
	p := Presentation{Kind: KindCall, Variant: f.variant}
	f.add(&p, LabelPerCall, f.amount(*r.Price), UnitLabelRequests)
	return p
}

func (f formatter) tiered(r Tiered) Presentation {
	if len(r.Tiers) == 0 {
		return f.unavailable(KindTiered)
	}

	p := Presentation{Kind: KindTiered, Variant: f.variant}
	for _, t := range r.Tiers {
		p.Tiers = append(p.Tiers, f.tier(t, r.Currency))
	}
	return p
}

func (f formatter) tier(t Tier, code string) TierView {
	if t.Billing == BillingRequests {
		value := ValueCustom
		if t.PricePerUnit != nil {
			value = f.amount(currency.Money{Amount: *t.PricePerUnit, Currency: code})
		}
		return TierView{
			Name:    t.Name,
			Billing: BillingRequests,
			Unit:    UnitLabelRequests,
			Rates:   []Chip{{Label: LabelPerRequest, Value: value}},
		}
	}

	v := TierView{Name: t.Name, Billing: BillingToken, Unit: f.unit.Label()}
	if !t.Resolved() {
		v.Rates = []Chip{{Label: LabelPrice, Value: ValueCustom}}
		return v
	}

	rate := func(x *float64) string {
		if x == nil {
			return ValueNoRate
		}
		return f.tokenRate(currency.Money{Amount: perMillion(*x, t.Unit), Currency: code})
	}
	v.Rates = append(v.Rates, Chip{Label: LabelInput, Value: rate(t.Input)})
	if t.Cached != nil {
		v.Rates = append(v.Rates, Chip{Label: LabelCached, Value: rate(t.Cached)})
	}
	v.Rates = append(v.Rates, Chip{Label: LabelOutput, Value: rate(t.Output)})
	return v
}

func (f formatter) unknown(r Unknown) Presentation {
	badge := strings.TrimSpace(r.RawTag)
	if badge == "" {
		badge = BadgeCustom
	}
	p := Presentation{Kind: KindUnknown, Variant: f.variant, Badge: badge}
	if f.variant == VariantDetailed {
		p.Note = NoteCustom
	}
	return p
}
