package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"pricecatalog/internal/currency"
)

// Number is an optional numeric editor value. The zero value is empty.
type Number struct {
	Value float64
	Valid bool
}

// Num returns a set Number.
func Num(v float64) Number {
	return Number{Value: v, Valid: true}
}

func numberOf(v *float64) Number {
	if v == nil {
		return Number{}
	}
	return Num(*v)
}

// Ptr returns the value, or nil when empty.
func (n Number) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// NumberInput parses editor text. Blank text clears the value.
func NumberInput(text string) (Number, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Number{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}, fmt.Errorf("invalid number %q", text)
	}
	return Num(v), nil
}

// MarshalJSON renders an empty Number as null.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON accepts null, a number, or numeric text. Null and blank text
// clear the value.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := NumberInput(s)
		if err != nil {
			return err
		}
		*n = parsed
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = Num(v)
	return nil
}

// Fields is the editable form of a pricing payload. Token rates are per one
// million tokens.
type Fields struct {
	Kind         Kind         `json:"kind"`
	Currency     string       `json:"currency,omitempty"`
	Input        Number       `json:"input"`
	Cached       Number       `json:"cached"`
	Output       Number       `json:"output"`
	PricePerCall Number       `json:"price_per_call"`
	Tiers        []TierFields `json:"tiers,omitempty"`
	// Override is raw JSON text that replaces the payload when non-blank.
	Override string `json:"override,omitempty"`
}

// TierFields is the editable form of one tier.
type TierFields struct {
	Name    string    `json:"name"`
	Billing Billing   `json:"billing"`
	Unit    UnitLabel `json:"unit"`
	Input   Number    `json:"input"`
	Cached  Number    `json:"cached"`
	Output  Number    `json:"output"`
	Price   Number    `json:"price"`
}

// SwitchBilling changes the tier's billing type. The first populated of
// price, input and output seeds the new type's primary field; every other
// rate is cleared.
func (t *TierFields) SwitchBilling(b Billing) {
	if t.Billing == b {
		return
	}

	var seed Number
	for _, n := range []Number{t.Price, t.Input, t.Output} {
		if n.Valid {
			seed = n
			break
		}
	}

	t.Input, t.Cached, t.Output, t.Price = Number{}, Number{}, Number{}, Number{}
	t.Billing = b
	switch b {
	case BillingRequests:
		t.Unit = UnitLabelRequests
		t.Price = seed
	default:
		t.Billing = BillingToken
		t.Unit = UnitLabel1K
		t.Input = seed
	}
}

// carryForward applies SwitchBilling to a tier whose billing type changed
// from the stored one when no rate for the new type was given.
func (t TierFields) carryForward(from, to Billing) TierFields {
	if to == BillingRequests {
		if t.Price.Valid {
			return t
		}
	} else if t.Input.Valid || t.Output.Valid || t.Cached.Valid {
		return t
	}
	t.Billing = from
	t.SwitchBilling(to)
	return t
}

// ToFieldState maps a stored payload to editable fields. fallbackCurrency is
// the record's price currency, reported when the payload names none. Unknown
// tags expose the payload as override text only.
func ToFieldState(tag string, payload json.RawMessage, fallbackCurrency string) Fields {
	switch rec := Normalize(tag, payload, fallbackCurrency).(type) {
	case Free:
		return Fields{Kind: KindFree}
	case TokenBased:
		f := Fields{Kind: KindToken, Currency: rec.Currency}
		if rec.Input != nil {
			f.Input = Num(rec.Input.Amount)
		}
		if rec.Cached != nil {
			f.Cached = Num(rec.Cached.Amount)
		}
		if rec.Output != nil {
			f.Output = Num(rec.Output.Amount)
		}
		return f
	case PerCall:
		f := Fields{Kind: KindCall, Currency: rec.Currency}
		if rec.Price != nil {
			f.PricePerCall = Num(rec.Price.Amount)
		}
		return f
	case Tiered:
		f := Fields{Kind: KindTiered, Currency: rec.Currency, Tiers: make([]TierFields, 0, len(rec.Tiers))}
		for _, t := range rec.Tiers {
			f.Tiers = append(f.Tiers, TierFields{
				Name:    t.Name,
				Billing: t.Billing,
				Unit:    t.Unit,
				Input:   numberOf(t.Input),
				Cached:  numberOf(t.Cached),
				Output:  numberOf(t.Output),
				Price:   numberOf(t.PricePerUnit),
			})
		}
		return f
	default:
		f := Fields{Kind: KindUnknown}
		if len(bytes.TrimSpace(payload)) > 0 {
			f.Override = string(payload)
		}
		return f
	}
}

// Paths the token editor owns besides the canonical base.*_1m fields.
var tokenAliasPaths = []string{
	"base.input_token_cached_1m",
	"base.input",
	"base.output",
	"base.cached",
	"base.per",
	"input",
	"output",
	"cached",
	"per",
	"pricing.input",
	"pricing.output",
	"pricing.cached",
	"pricing.per",
}

// Tier keys the tier editor owns. Everything else in a tier body is kept.
var tierOwnedKeys = []string{
	"name",
	"billing",
	"unit",
	"price",
	"price_per_unit",
	"input_price_per_unit",
	"inputPrice",
	"output_price_per_unit",
	"outputPrice",
	"cached_price_per_unit",
	"cachedPrice",
}

// FromFieldState writes edited fields into the previous payload. Keys the
// editor for tag does not own are kept as they were. Non-blank override text
// replaces the payload and must be valid JSON, otherwise an
// InvalidPricingJSONError is returned and previous is left untouched.
// A currency is written into the payload only when it differs from what the
// payload resolves to with fallbackCurrency.
// A nil result means the payload was cleared.
func FromFieldState(tag string, fields Fields, previous json.RawMessage, fallbackCurrency string) (json.RawMessage, error) {
	if text := strings.TrimSpace(fields.Override); text != "" {
		out, err := checkJSON([]byte(text))
		if err != nil {
			return nil, err
		}
		if IsEmptyPayload(out) {
			return nil, nil
		}
		return out, nil
	}

	doc := baseDocument(previous)

	var err error
	switch ParseTag(tag).Kind {
	case KindToken:
		doc, err = writeToken(doc, fields, fallbackCurrency)
	case KindCall:
		doc, err = writeCall(doc, fields)
	case KindTiered:
		doc, err = writeTiers(doc, fields, fallbackCurrency)
	default:
		if IsEmptyPayload(previous) {
			return nil, nil
		}
		return clone(previous), nil
	}
	if err != nil {
		return nil, fmt.Errorf("writing pricing fields: %w", err)
	}
	if IsEmptyPayload(doc) {
		return nil, nil
	}
	return doc, nil
}

// baseDocument returns a private copy of the previous payload as a JSON
// object, decoding a string-encoded payload once.
func baseDocument(previous json.RawMessage) []byte {
	r := parsePayload(previous)
	if !r.IsObject() {
		return []byte("{}")
	}
	return []byte(r.Raw)
}

func writeToken(doc []byte, fields Fields, fallbackCurrency string) ([]byte, error) {
	var err error
	for _, p := range tokenAliasPaths {
		if doc, err = sjson.DeleteBytes(doc, p); err != nil {
			return nil, err
		}
	}

	values := []struct {
		path string
		n    Number
	}{
		{"base.input_token_1m", fields.Input},
		{"base.output_token_1m", fields.Output},
		{"base.cached_input_token_1m", fields.Cached},
	}
	set := false
	for _, v := range values {
		if doc, err = setNumber(doc, v.path, v.n); err != nil {
			return nil, err
		}
		set = set || v.n.Valid
	}

	code := currency.Code(fields.Currency)
	switch {
	case !set:
		doc, err = sjson.DeleteBytes(doc, "base.currency")
	case code != "" && code != normalizeToken(gjson.ParseBytes(doc), fallbackCurrency).Currency:
		doc, err = sjson.SetBytes(doc, "base.currency", code)
	}
	if err != nil {
		return nil, err
	}

	if doc, err = dropEmptyObject(doc, "pricing"); err != nil {
		return nil, err
	}
	return dropEmptyObject(doc, "base")
}

func writeCall(doc []byte, fields Fields) ([]byte, error) {
	doc, err := setNumber(doc, "base.price_per_call", fields.PricePerCall)
	if err != nil {
		return nil, err
	}
	return dropEmptyObject(doc, "base")
}

func writeTiers(doc []byte, fields Fields, fallbackCurrency string) ([]byte, error) {
	previous := rawTiers(gjson.ParseBytes(doc))

	var arr bytes.Buffer
	arr.WriteByte('[')
	for i, tf := range fields.Tiers {
		body, err := writeTier(matchTier(previous, tf.Name, i), tf, i)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			arr.WriteByte(',')
		}
		arr.Write(body)
	}
	arr.WriteByte(']')

	doc, err := sjson.SetRawBytes(doc, "tiers", arr.Bytes())
	if err != nil {
		return nil, err
	}

	code := currency.Code(fields.Currency)
	switch {
	case len(fields.Tiers) == 0:
		return sjson.DeleteBytes(doc, "currency")
	case code != "" && code != payloadCurrency(gjson.ParseBytes(doc), fallbackCurrency):
		return sjson.SetBytes(doc, "currency", code)
	}
	return doc, nil
}

// matchTier finds the previous body of a tier by name, then by position.
func matchTier(previous []rawTier, name string, index int) gjson.Result {
	for _, rt := range previous {
		if rt.name == name {
			return rt.body
		}
	}
	if index < len(previous) {
		return previous[index].body
	}
	return gjson.Result{}
}

func writeTier(prev gjson.Result, tf TierFields, index int) ([]byte, error) {
	body := []byte("{}")
	if prev.IsObject() {
		body = []byte(prev.Raw)
	}

	var err error
	for _, key := range tierOwnedKeys {
		if body, err = sjson.DeleteBytes(body, key); err != nil {
			return nil, err
		}
	}

	name := strings.TrimSpace(tf.Name)
	if name == "" {
		name = "Tier " + strconv.Itoa(index+1)
	}

	billing := tf.Billing
	if billing != BillingRequests {
		billing = BillingToken
	}
	if prev.IsObject() {
		if from := normalizeTier("", prev).Billing; from != billing {
			tf = tf.carryForward(from, billing)
		}
	}

	unit := UnitLabelRequests
	if billing == BillingToken {
		unit = UnitLabel1K
		if tf.Unit == UnitLabel1M {
			unit = UnitLabel1M
		}
	}

	if body, err = sjson.SetBytes(body, "name", name); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "billing", string(billing)); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "unit", string(unit)); err != nil {
		return nil, err
	}

	if billing == BillingRequests {
		return setNumber(body, "price_per_unit", tf.Price)
	}
	if body, err = setNumber(body, "input_price_per_unit", tf.Input); err != nil {
		return nil, err
	}
	if body, err = setNumber(body, "output_price_per_unit", tf.Output); err != nil {
		return nil, err
	}
	return setNumber(body, "cached_price_per_unit", tf.Cached)
}

// setNumber writes n at path, or deletes path when n is empty.
func setNumber(doc []byte, path string, n Number) ([]byte, error) {
	if !n.Valid {
		return sjson.DeleteBytes(doc, path)
	}
	return sjson.SetBytes(doc, path, n.Value)
}

// dropEmptyObject removes path when it holds an object without keys.
func dropEmptyObject(doc []byte, path string) ([]byte, error) {
	r := gjson.GetBytes(doc, path)
	if r.IsObject() && len(r.Map()) == 0 {
		return sjson.DeleteBytes(doc, path)
	}
	return doc, nil
}

func clone(b json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), b...)
}
