package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// number coerces a JSON value to a finite number. Numeric strings are
// trimmed and parsed. Everything else is absent.
func number(r gjson.Result) *float64 {
	var v float64
	switch r.Type {
	case gjson.Number:
		v = r.Num
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		v = f
	default:
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// firstNumber returns the first path under r that coerces to a number.
func firstNumber(r gjson.Result, paths ...string) *float64 {
	for _, p := range paths {
		if v := number(r.Get(p)); v != nil {
			return v
		}
	}
	return nil
}

// firstString returns the first non-blank string found at paths.
func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		if v.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(v.Str); s != "" {
			return s
		}
	}
	return ""
}

// parsePayload parses a raw payload. A payload that is itself a JSON encoded
// string is decoded once more. Invalid JSON yields an empty result.
func parsePayload(payload json.RawMessage) gjson.Result {
	if !gjson.ValidBytes(payload) {
		return gjson.Result{}
	}
	r := gjson.ParseBytes(payload)
	if r.Type == gjson.String {
		inner := strings.TrimSpace(r.Str)
		if !gjson.Valid(inner) {
			return gjson.Result{}
		}
		return gjson.Parse(inner)
	}
	return r
}
