package catalog

import (
	"pricecatalog/internal/currency"
	"pricecatalog/internal/labels"
	"pricecatalog/internal/pricing"
)

// PresentOptions selects how prices are shown.
type PresentOptions struct {
	DisplayCurrency string
	Table           currency.Table
	Unit            pricing.Unit
	Variant         pricing.Variant
}

// View is a model ready for display.
type View struct {
	ID            string               `json:"id"`
	Model         string               `json:"model"`
	Vendor        string               `json:"vendor"`
	Description   string               `json:"description,omitempty"`
	PriceModel    string               `json:"price_model"`
	PriceCurrency string               `json:"price_currency"`
	Capabilities  []string             `json:"model_capability"`
	Licenses      []string             `json:"license"`
	Categories    []string             `json:"categories"`
	Pricing       pricing.Presentation `json:"pricing"`
	Resolved      bool                 `json:"pricing_resolved"`
	CreatedAt     int64                `json:"created_at"`
	UpdatedAt     int64                `json:"updated_at"`
}

// Present normalizes a model's label fields and pricing and renders them.
func Present(m *Model, opts PresentOptions) View {
	rec := pricing.Normalize(m.PriceModel, m.PriceData, m.PriceCurrency)
	return View{
		ID:            m.ID,
		Model:         m.Model,
		Vendor:        m.Vendor,
		Description:   m.Description,
		PriceModel:    m.PriceModel,
		PriceCurrency: m.PriceCurrency,
		Capabilities:  labels.Normalize(m.ModelCapability),
		Licenses:      labels.Normalize(m.License),
		Categories:    labels.Normalize(m.Categories),
		Pricing:       pricing.Format(rec, opts.DisplayCurrency, opts.Table, opts.Unit, opts.Variant),
		Resolved:      pricing.Resolved(rec),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// Apply returns a copy of m with the pricing patch applied. A patch without
// price data clears the stored payload.
func Apply(m Model, patch pricing.Patch) Model {
	m.PriceModel = patch.PriceModel
	m.PriceCurrency = patch.PriceCurrency
	m.PriceData = nil
	if len(patch.PriceData) > 0 {
		m.PriceData = append(m.PriceData, patch.PriceData...)
	}
	return m
}
