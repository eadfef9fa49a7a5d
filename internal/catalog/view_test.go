package catalog

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricecatalog/internal/currency"
	"pricecatalog/internal/pricing"
)

func TestPresent(t *testing.T) {
	m := &Model{
		ID:              "m1",
		Model:           "acme-large",
		Vendor:          "acme",
		PriceModel:      "tokens",
		PriceCurrency:   "USD",
		PriceData:       json.RawMessage(`{"base":{"input_token_1m":2,"output_token_1m":4}}`),
		ModelCapability: json.RawMessage(`["chat", " vision ", "chat"]`),
		License:         json.RawMessage(`"[\"MIT\"]"`),
		CreatedAt:       10,
		UpdatedAt:       20,
	}
	table := currency.NewTable("USD", map[string]float64{"EUR": 0.5})

	view := Present(m, PresentOptions{DisplayCurrency: "EUR", Table: table, Unit: pricing.Unit1M})

	assert.Equal(t, "m1", view.ID)
	assert.Equal(t, []string{"chat", "vision"}, view.Capabilities)
	assert.Equal(t, []string{"MIT"}, view.Licenses)
	assert.Equal(t, []string{}, view.Categories)
	assert.True(t, view.Resolved)
	assert.Equal(t, pricing.KindToken, view.Pricing.Kind)
	require.Len(t, view.Pricing.Chips, 2)
	assert.Equal(t, pricing.Chip{Label: pricing.LabelInput, Value: "€1.00"}, view.Pricing.Chips[0])
	assert.Equal(t, pricing.Chip{Label: pricing.LabelOutput, Value: "€2.00"}, view.Pricing.Chips[1])
	assert.Equal(t, int64(20), view.UpdatedAt)
}

func TestPresentUnresolvedPricing(t *testing.T) {
	m := &Model{ID: "m2", Model: "mystery", PriceModel: "tokens", PriceData: json.RawMessage(`{}`)}
	view := Present(m, PresentOptions{DisplayCurrency: "USD", Table: currency.NewTable("USD", nil)})

	if view.Resolved {
		t.Fatal("expected unresolved pricing")
	}
	if !view.Pricing.Unavailable {
		t.Fatal("expected unavailable presentation")
	}
}

func TestApply(t *testing.T) {
	original := Model{
		ID:            "m1",
		Model:         "acme",
		PriceModel:    "tokens",
		PriceCurrency: "USD",
		PriceData:     json.RawMessage(`{"base":{"input_token_1m":1}}`),
	}

	t.Run("replaces pricing", func(t *testing.T) {
		patch := pricing.BuildPatch("call", "EUR", json.RawMessage(`{"base":{"price_per_call":0.5}}`))
		got := Apply(original, patch)
		if got.PriceModel != "call" || got.PriceCurrency != "EUR" {
			t.Fatalf("got = %+v", got)
		}
		if string(got.PriceData) != `{"base":{"price_per_call":0.5}}` {
			t.Fatalf("price_data = %s", got.PriceData)
		}
		if string(original.PriceData) != `{"base":{"input_token_1m":1}}` {
			t.Fatalf("original mutated: %s", original.PriceData)
		}
	})

	t.Run("empty payload clears data", func(t *testing.T) {
		got := Apply(original, pricing.BuildPatch("free", "USD", json.RawMessage(`{}`)))
		if got.PriceData != nil {
			t.Fatalf("price_data = %s, want nil", got.PriceData)
		}
		if !reflect.DeepEqual(got.ID, original.ID) {
			t.Fatalf("id changed: %q", got.ID)
		}
	})
}
