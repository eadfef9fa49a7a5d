package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricecatalog/internal/catalog"
	"pricecatalog/internal/currency"
	"pricecatalog/internal/pricing"
)

type failingSource struct{}

func (failingSource) Fetch(context.Context) (*currency.ConfigResponse, error) {
	return nil, errors.New("upstream down")
}

func newTestRates(t *testing.T) *currency.Service {
	t.Helper()
	rates := currency.NewService(currency.Options{
		Base: "USD",
		Source: currency.StaticSource{
			Rates: map[string]float64{"EUR": 0.5, "JPY": 150},
		},
	})
	require.NoError(t, rates.Refresh(context.Background()))
	return rates
}

func newTestStore(t *testing.T) *catalog.MemoryStore {
	t.Helper()
	store := catalog.NewMemoryStore()
	ctx := context.Background()
	models := []*catalog.Model{
		{
			ID:              "tok",
			Model:           "Token Model",
			Vendor:          "acme",
			PriceModel:      "tokens",
			PriceCurrency:   "USD",
			PriceData:       json.RawMessage(`{"base":{"input_token_1m":2,"output_token_1m":4},"notes":"keep me"}`),
			ModelCapability: json.RawMessage(`["chat","vision"]`),
			CreatedAt:       200,
		},
		{
			ID:         "call",
			Model:      "Call Model",
			Vendor:     "acme",
			PriceModel: "call",
			PriceData:  json.RawMessage(`{"base":{"price_per_call":0.002}}`),
			CreatedAt:  100,
		},
	}
	for _, m := range models {
		require.NoError(t, store.Create(ctx, m))
	}
	return store
}

func newTestServer(t *testing.T) (*Server, *catalog.MemoryStore, *currency.Service) {
	t.Helper()
	store := newTestStore(t)
	rates := newTestRates(t)
	return New(store, rates, nil), store, rates
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]map[string]any](t, rec)
	typ, _ := body["error"]["type"].(string)
	return typ
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListModels(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/v1/models?currency=eur", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := decode[ModelList](t, rec)
	assert.Equal(t, "list", list.Object)
	assert.Equal(t, "EUR", list.DisplayCurrency)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "tok", list.Data[0].ID)
	assert.Equal(t, "call", list.LastID)
	assert.Equal(t, []string{"chat", "vision"}, list.Data[0].Capabilities)
	require.Len(t, list.Data[0].Pricing.Chips, 2)
	assert.Equal(t, "€1.00", list.Data[0].Pricing.Chips[0].Value)

	// per-call prices are shown converted too
	require.Len(t, list.Data[1].Pricing.Chips, 1)
	assert.Equal(t, "€0.0010", list.Data[1].Pricing.Chips[0].Value)
}

func TestListModelsPagination(t *testing.T) {
	srv, _, _ := newTestServer(t)

	list := decode[ModelList](t, do(t, srv, http.MethodGet, "/v1/models?limit=1", ""))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "tok", list.LastID)

	list = decode[ModelList](t, do(t, srv, http.MethodGet, "/v1/models?limit=1&after=tok", ""))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "call", list.Data[0].ID)
}

func TestListModelsInvalidQuery(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantType   string
	}{
		{name: "unknown currency", target: "/v1/models?currency=XYZ", wantStatus: http.StatusBadRequest, wantType: "invalid_request_error"},
		{name: "bad unit", target: "/v1/models?unit=1G", wantStatus: http.StatusBadRequest, wantType: "invalid_request_error"},
		{name: "bad variant", target: "/v1/models?variant=huge", wantStatus: http.StatusBadRequest, wantType: "invalid_request_error"},
		{name: "bad limit", target: "/v1/models?limit=many", wantStatus: http.StatusBadRequest, wantType: "invalid_request_error"},
		{name: "unknown cursor", target: "/v1/models?after=ghost", wantStatus: http.StatusNotFound, wantType: "not_found_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, errorType(t, rec))
		})
	}
}

func TestGetModel(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/v1/models/tok?unit=1K&variant=detailed", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[catalog.View](t, rec)
	assert.True(t, view.Resolved)
	assert.Equal(t, pricing.VariantDetailed, view.Pricing.Variant)
	require.Len(t, view.Pricing.Cards, 2)
	assert.Equal(t, pricing.UnitLabel1K, view.Pricing.Cards[0].Unit)

	rec = do(t, srv, http.MethodGet, "/v1/models/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found_error", errorType(t, rec))
}

func TestCreateModel(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/models", `{"model":"Fresh","vendor":"acme","price_model":"free"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[catalog.View](t, rec)
	assert.Len(t, view.ID, 36)
	assert.Equal(t, pricing.BadgeFree, view.Pricing.Badge)

	_, err := store.Get(context.Background(), view.ID)
	require.NoError(t, err)

	rec = do(t, srv, http.MethodPost, "/v1/models", `{"id":"tok","model":"Dup"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/models", `{"id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/models", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPricingFields(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/v1/models/tok/pricing/fields", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[PricingFields](t, rec)
	assert.Equal(t, "tokens", resp.PriceModel)
	assert.Equal(t, pricing.KindToken, resp.Fields.Kind)
	assert.Equal(t, pricing.Num(2), resp.Fields.Input)
	assert.Equal(t, pricing.Num(4), resp.Fields.Output)
	assert.False(t, resp.Fields.Cached.Valid)
}

func TestUpdatePricing(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	body := `{"price_model":"tokens","fields":{"kind":"token","input":3,"cached":null,"output":"6"}}`
	rec := do(t, srv, http.MethodPut, "/v1/models/tok/pricing", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "USD", stored.PriceCurrency)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(stored.PriceData, &payload))
	assert.Equal(t, "keep me", payload["notes"])
	base := payload["base"].(map[string]any)
	assert.InDelta(t, 3, base["input_token_1m"], 1e-9)
	assert.InDelta(t, 6, base["output_token_1m"], 1e-9)
}

func TestPricingFieldsRoundTripKeepsRecordCurrency(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &catalog.Model{
		ID:            "eur",
		Model:         "Euro Model",
		PriceModel:    "tokens",
		PriceCurrency: "EUR",
		PriceData:     json.RawMessage(`{"base":{"input_token_1m":2}}`),
		CreatedAt:     300,
	}))

	rec := do(t, srv, http.MethodGet, "/v1/models/eur/pricing/fields", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fields := decode[PricingFields](t, rec)
	assert.Equal(t, "EUR", fields.Fields.Currency)

	body, err := json.Marshal(fields)
	require.NoError(t, err)
	rec = do(t, srv, http.MethodPut, "/v1/models/eur/pricing", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := store.Get(ctx, "eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", stored.PriceCurrency)
	assert.JSONEq(t, `{"base":{"input_token_1m":2}}`, string(stored.PriceData))
}

func TestUpdatePricingInvalidOverride(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()
	before, err := store.Get(ctx, "tok")
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPut, "/v1/models/tok/pricing", `{"fields":{"override":"{\"base\": }"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	body := decode[map[string]map[string]any](t, rec)
	assert.Equal(t, "invalid_pricing_json", body["error"]["type"])
	assert.InDelta(t, 10, body["error"]["offset"], 1e-9)

	after, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdatePricingOverrideReplacesPayload(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/v1/models/call/pricing",
		`{"price_model":"call","price_currency":"usd","fields":{"override":"{\"base\":{\"price_per_call\":0.01}}"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := store.Get(context.Background(), "call")
	require.NoError(t, err)
	assert.JSONEq(t, `{"base":{"price_per_call":0.01}}`, string(stored.PriceData))
	assert.Equal(t, "USD", stored.PriceCurrency)
}

func TestPreviewPricing(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/pricing/preview?currency=JPY",
		`{"price_model":"tokens","price_data":{"pricing":{"input":0.01,"output":0.02,"per":"1k"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[PreviewResponse](t, rec)
	assert.Equal(t, pricing.KindToken, resp.Kind)
	assert.True(t, resp.Resolved)
	require.Len(t, resp.Pricing.Chips, 2)
	assert.Equal(t, "¥1,500.00", resp.Pricing.Chips[0].Value)

	rec = do(t, srv, http.MethodPost, "/v1/pricing/preview", `{"price_model":"tokens","price_data_text":"{nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_pricing_json", errorType(t, rec))
}

func TestCurrencyEndpoints(t *testing.T) {
	srv, _, rates := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/v1/currency", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[CurrencyResponse](t, rec)
	assert.Equal(t, "USD", resp.DisplayCurrency)
	assert.Equal(t, "USD", resp.Base)
	assert.InDelta(t, 150, resp.ExchangeRates["JPY"], 1e-9)
	assert.ElementsMatch(t, []string{"EUR", "JPY", "USD"}, resp.AvailableCurrencies)
	assert.NotNil(t, resp.UpdatedAt)

	rec = do(t, srv, http.MethodPut, "/v1/currency", `{"currency":"eur"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "EUR", rates.State().DisplayCurrency)

	rec = do(t, srv, http.MethodPut, "/v1/currency", `{"currency":"XYZ"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPut, "/v1/currency", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/currency/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	// the explicit selection survives a refresh
	assert.Equal(t, "EUR", rates.State().DisplayCurrency)
}

func TestRefreshCurrencyFailure(t *testing.T) {
	rates := currency.NewService(currency.Options{Base: "USD", Source: failingSource{}})
	srv := New(catalog.NewMemoryStore(), rates, nil)

	rec := do(t, srv, http.MethodPost, "/v1/currency/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_error", errorType(t, rec))

	// the base-only table is still served
	rec = do(t, srv, http.MethodGet, "/v1/currency", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "USD", decode[CurrencyResponse](t, rec).DisplayCurrency)
}

func TestRefreshCurrencyWithoutSource(t *testing.T) {
	srv := New(catalog.NewMemoryStore(), currency.NewService(currency.Options{}), nil)
	rec := do(t, srv, http.MethodPost, "/v1/currency/refresh", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
