package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPricingJSON matches any InvalidPricingJSONError via errors.Is.
var ErrInvalidPricingJSON = errors.New("invalid pricing JSON")

// InvalidPricingJSONError reports override text that is not valid JSON.
type InvalidPricingJSONError struct {
	// Offset is the byte offset of the syntax error, or 0 when unknown.
	Offset int64
	Err    error
}

func (e *InvalidPricingJSONError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("invalid pricing JSON at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("invalid pricing JSON: %v", e.Err)
}

func (e *InvalidPricingJSONError) Unwrap() error { return e.Err }

func (e *InvalidPricingJSONError) Is(target error) bool {
	return target == ErrInvalidPricingJSON
}

// checkJSON validates override text and returns its compact form.
func checkJSON(text []byte) (json.RawMessage, error) {
	// Unmarshal reports the syntax error offset; Compact does not.
	var raw json.RawMessage
	if err := json.Unmarshal(text, &raw); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, &InvalidPricingJSONError{Offset: syntaxErr.Offset, Err: err}
		}
		return nil, &InvalidPricingJSONError{Err: err}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, &InvalidPricingJSONError{Err: err}
	}
	return buf.Bytes(), nil
}

// ValidatePayload checks raw price_data text and returns it compacted.
// Blank input yields a nil payload.
func ValidatePayload(text []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, nil
	}
	return checkJSON(text)
}
