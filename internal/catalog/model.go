// Package catalog stores model records and turns them into display views
// using the pricing engine.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates a requested model was not found.
var ErrNotFound = errors.New("model not found")

// ErrAlreadyExists is returned when creating a model whose id is taken.
var ErrAlreadyExists = errors.New("model already exists")

// Model is a vendor model record as stored. Label fields and price_data are
// kept in the loose shape the vendor supplied.
type Model struct {
	ID              string          `json:"id"`
	Model           string          `json:"model"`
	Vendor          string          `json:"vendor"`
	Description     string          `json:"description,omitempty"`
	PriceModel      string          `json:"price_model"`
	PriceCurrency   string          `json:"price_currency"`
	PriceData       json.RawMessage `json:"price_data,omitempty"`
	ModelCapability json.RawMessage `json:"model_capability,omitempty"`
	License         json.RawMessage `json:"license,omitempty"`
	Categories      json.RawMessage `json:"categories,omitempty"`
	CreatedAt       int64           `json:"created_at"`
	UpdatedAt       int64           `json:"updated_at"`
}

// Validate checks the fields every stored model needs.
func (m *Model) Validate() error {
	if m == nil {
		return fmt.Errorf("model is nil")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("model id is required")
	}
	if strings.TrimSpace(m.Model) == "" {
		return fmt.Errorf("model name is required")
	}
	for name, raw := range map[string]json.RawMessage{
		"price_data":       m.PriceData,
		"model_capability": m.ModelCapability,
		"license":          m.License,
		"categories":       m.Categories,
	} {
		if len(raw) > 0 && !json.Valid(raw) {
			return fmt.Errorf("%s is not valid JSON", name)
		}
	}
	return nil
}

func serializeModel(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return b, nil
}

func deserializeModel(raw []byte) (*Model, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty model payload")
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	return &m, nil
}

func cloneModel(src *Model) (*Model, error) {
	b, err := serializeModel(src)
	if err != nil {
		return nil, err
	}
	return deserializeModel(b)
}
