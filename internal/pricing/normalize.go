package pricing

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"pricecatalog/internal/currency"
)

// tokenSource is one location a vendor may put token rates.
type tokenSource struct {
	scope  string
	input  []string
	output []string
	cached []string
	hint   string // unit hint path; empty when rates are already per million
}

// tokenSources are tried in order; the first with any rate wins.
var tokenSources = []tokenSource{
	{
		scope:  "base",
		input:  []string{"base.input_token_1m"},
		output: []string{"base.output_token_1m"},
		cached: []string{"base.input_token_cached_1m", "base.cached_input_token_1m"},
	},
	{
		scope:  "base",
		input:  []string{"base.input"},
		output: []string{"base.output"},
		cached: []string{"base.cached"},
		hint:   "base.per",
	},
	{
		input:  []string{"input"},
		output: []string{"output"},
		cached: []string{"cached"},
		hint:   "per",
	},
	{
		scope:  "pricing",
		input:  []string{"pricing.input"},
		output: []string{"pricing.output"},
		cached: []string{"pricing.cached"},
		hint:   "pricing.per",
	},
}

// Normalize parses a raw pricing payload according to its price_model tag.
// It never fails: payloads without usable rates produce records that report
// themselves as unresolved.
func Normalize(tag string, payload json.RawMessage, fallbackCurrency string) Record {
	data := parsePayload(payload)

	switch ParseTag(tag).Kind {
	case KindFree:
		return Free{}
	case KindToken:
		return normalizeToken(data, fallbackCurrency)
	case KindCall:
		return normalizeCall(data)
	case KindTiered:
		return Tiered{Tiers: normalizeTiers(data), Currency: payloadCurrency(data, fallbackCurrency)}
	default:
		return Unknown{RawTag: tag, RawPayload: payload}
	}
}

// payloadCurrency returns the top-level currency of a payload, else the
// fallback, else DefaultCurrency.
func payloadCurrency(data gjson.Result, fallbackCurrency string) string {
	if s := firstString(data, "currency"); s != "" {
		return currency.Code(s)
	}
	if code := currency.Code(fallbackCurrency); code != "" {
		return code
	}
	return DefaultCurrency
}

func normalizeToken(data gjson.Result, fallbackCurrency string) TokenBased {
	fallback := currency.Code(fallbackCurrency)
	if fallback == "" {
		fallback = DefaultCurrency
	}

	for _, src := range tokenSources {
		input := firstNumber(data, src.input...)
		output := firstNumber(data, src.output...)
		cached := firstNumber(data, src.cached...)
		if input == nil && output == nil && cached == nil {
			continue
		}

		code := fallback
		paths := []string{"currency"}
		if src.scope != "" {
			paths = []string{src.scope + ".currency", "currency"}
		}
		if s := firstString(data, paths...); s != "" {
			code = currency.Code(s)
		}

		scale := 1.0
		if src.hint != "" {
			scale = hintScale(data.Get(src.hint).String())
		}

		return TokenBased{
			Input:        money(input, scale, code),
			Cached:       money(cached, scale, code),
			Output:       money(output, scale, code),
			PerUnitLabel: UnitLabel1M,
			Currency:     code,
		}
	}

	return TokenBased{PerUnitLabel: UnitLabel1M, Currency: fallback}
}

// hintScale returns the factor turning a rate quoted per hint into a rate
// per million tokens.
func hintScale(hint string) float64 {
	h := strings.ToLower(hint)
	switch {
	case strings.Contains(h, "1m"), strings.Contains(h, "million"), strings.Contains(h, "1000000"):
		return 1
	case strings.Contains(h, "1k"), strings.Contains(h, "1000"):
		return 1000
	case strings.Contains(h, "token"):
		return 1_000_000
	default:
		return 1
	}
}

func money(v *float64, scale float64, code string) *currency.Money {
	if v == nil {
		return nil
	}
	return &currency.Money{Amount: *v * scale, Currency: code}
}

func normalizeCall(data gjson.Result) PerCall {
	rec := PerCall{Currency: DefaultCurrency}
	if v := number(data.Get("base.price_per_call")); v != nil {
		rec.Price = &currency.Money{Amount: *v, Currency: DefaultCurrency}
	}
	return rec
}

// rawTier is a tier body with its resolved display name.
type rawTier struct {
	name string
	key  string // map key for object-form tiers
	body gjson.Result
}

// rawTiers lists the tiers of a payload in document order. Array entries
// without a name are called "Tier N"; map entries use their key unless the
// body declares a name.
func rawTiers(data gjson.Result) []rawTier {
	tiers := data.Get("tiers")
	var out []rawTier

	switch {
	case tiers.IsArray():
		for i, body := range tiers.Array() {
			name := tierName(body)
			if name == "" {
				name = "Tier " + strconv.Itoa(i+1)
			}
			out = append(out, rawTier{name: name, body: body})
		}
	case tiers.IsObject():
		tiers.ForEach(func(key, body gjson.Result) bool {
			name := tierName(body)
			if name == "" {
				name = key.String()
			}
			out = append(out, rawTier{name: name, key: key.String(), body: body})
			return true
		})
	}
	return out
}

// tierName reads a tier's declared name. Numeric names such as 2024 are
// kept as written.
func tierName(body gjson.Result) string {
	switch v := body.Get("name"); v.Type {
	case gjson.String, gjson.Number:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func normalizeTiers(data gjson.Result) []Tier {
	raw := rawTiers(data)
	tiers := make([]Tier, 0, len(raw))
	for _, rt := range raw {
		tiers = append(tiers, normalizeTier(rt.name, rt.body))
	}
	return tiers
}

func normalizeTier(name string, body gjson.Result) Tier {
	unit := strings.ToLower(body.Get("unit").String())

	billing := parseBilling(body.Get("billing").String())
	if billing == "" {
		if strings.Contains(unit, "token") {
			billing = BillingToken
		} else {
			billing = BillingRequests
		}
	}

	t := Tier{Name: name, Billing: billing}
	if billing == BillingRequests {
		t.Unit = UnitLabelRequests
		t.PricePerUnit = firstNumber(body, "price_per_unit", "price")
		return t
	}

	t.Unit = UnitLabel1K
	if strings.Contains(unit, "1m") {
		t.Unit = UnitLabel1M
	}
	generic := firstNumber(body, "price_per_unit", "price")
	t.Input = orElse(firstNumber(body, "input_price_per_unit", "inputPrice"), generic)
	t.Output = orElse(firstNumber(body, "output_price_per_unit", "outputPrice"), generic)
	t.Cached = firstNumber(body, "cached_price_per_unit", "cachedPrice")
	return t
}

func parseBilling(s string) Billing {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "token", "tokens":
		return BillingToken
	case "request", "requests":
		return BillingRequests
	default:
		return ""
	}
}

func orElse(v, fallback *float64) *float64 {
	if v != nil {
		return v
	}
	if fallback == nil {
		return nil
	}
	c := *fallback
	return &c
}
