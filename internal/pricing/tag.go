// Package pricing normalizes vendor pricing payloads into canonical records,
// renders them for display and maps them to editable fields and back.
package pricing

import "strings"

// Kind identifies the canonical record variant for a pricing model tag.
type Kind string

const (
	KindFree    Kind = "free"
	KindToken   Kind = "token"
	KindCall    Kind = "call"
	KindTiered  Kind = "tiered"
	KindUnknown Kind = "unknown"
)

// Tag is a parsed price_model value. Raw keeps the string as supplied.
type Tag struct {
	Kind Kind
	Raw  string
}

// ParseTag classifies a price_model value case-insensitively.
// Unrecognized values map to KindUnknown.
func ParseTag(raw string) Tag {
	var kind Kind
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "free":
		kind = KindFree
	case "token", "tokens":
		kind = KindToken
	case "call":
		kind = KindCall
	case "tiered", "subscription":
		kind = KindTiered
	default:
		kind = KindUnknown
	}
	return Tag{Kind: kind, Raw: raw}
}
