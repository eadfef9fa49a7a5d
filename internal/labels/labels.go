// Package labels normalizes loosely typed label fields (capabilities, licenses,
// categories) into ordered, deduplicated string sets.
//
// Vendors publish these fields as arrays, bare strings, JSON-encoded strings, or
// any nesting of the three. Normalize flattens all of them the same way.
package labels

import (
	"encoding/json"
	"strings"
)

// Normalize expands value into an ordered label set. Labels are trimmed, empty
// labels are dropped, and duplicates are removed keeping the first occurrence.
// Values of unsupported types contribute nothing. The result is never nil.
//
// Normalize is idempotent: Normalize(Normalize(x)) equals Normalize(x).
func Normalize(value any) []string {
	var candidates []string
	expand(value, &candidates)

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func expand(value any, out *[]string) {
	switch v := value.(type) {
	case nil:
	case []any:
		for _, elem := range v {
			expand(elem, out)
		}
	case []string:
		for _, elem := range v {
			expand(elem, out)
		}
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return
		}
		expand(decoded, out)
	case string:
		expandString(v, out)
	}
}

// expandString treats s as a JSON literal when it parses to an array or a
// string, and as a single label otherwise.
func expandString(s string, out *[]string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}

	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err == nil {
		switch p := parsed.(type) {
		case []any:
			expand(p, out)
			return
		case string:
			expandString(p, out)
			return
		}
	}
	*out = append(*out, s)
}

// Contains reports whether the normalized form of value includes label.
func Contains(value any, label string) bool {
	label = strings.TrimSpace(label)
	for _, l := range Normalize(value) {
		if l == label {
			return true
		}
	}
	return false
}
