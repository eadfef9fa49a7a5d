package pricing

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Patch is the pricing update sent to the record store. PriceData is
// omitted when the payload was cleared.
type Patch struct {
	PriceModel    string          `json:"price_model"`
	PriceCurrency string          `json:"price_currency"`
	PriceData     json.RawMessage `json:"price_data,omitempty"`
}

// BuildPatch assembles a patch. Empty payloads (blank, null, "" or an object
// without keys) leave PriceData unset.
func BuildPatch(tag, priceCurrency string, data json.RawMessage) Patch {
	p := Patch{PriceModel: tag, PriceCurrency: priceCurrency}
	if !IsEmptyPayload(data) {
		p.PriceData = clone(data)
	}
	return p
}

// IsEmptyPayload reports whether a payload carries no data.
func IsEmptyPayload(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return true
	}
	r := gjson.ParseBytes(trimmed)
	switch {
	case r.Type == gjson.Null:
		return bytes.Equal(trimmed, []byte("null"))
	case r.Type == gjson.String:
		return r.Str == ""
	case r.IsObject():
		return len(r.Map()) == 0
	default:
		return false
	}
}
