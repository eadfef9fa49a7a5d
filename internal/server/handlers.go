// Package server exposes the model catalog, pricing editor and currency
// state over HTTP.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"pricecatalog/internal/catalog"
	"pricecatalog/internal/currency"
	"pricecatalog/internal/observability"
	"pricecatalog/internal/pricing"
)

// Defaults are the presentation settings used when a request names none.
type Defaults struct {
	Unit    pricing.Unit
	Variant pricing.Variant
}

// Handler holds the HTTP handlers
type Handler struct {
	store    catalog.Store
	rates    *currency.Service
	metrics  *observability.Metrics
	defaults Defaults
}

// NewHandler creates a handler. metrics may be nil.
func NewHandler(store catalog.Store, rates *currency.Service, metrics *observability.Metrics, defaults Defaults) *Handler {
	if defaults.Unit != pricing.Unit1K {
		defaults.Unit = pricing.Unit1M
	}
	if defaults.Variant != pricing.VariantDetailed {
		defaults.Variant = pricing.VariantCompact
	}
	return &Handler{
		store:    store,
		rates:    rates,
		metrics:  metrics,
		defaults: defaults,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ModelList is the response of GET /v1/models.
type ModelList struct {
	Object          string         `json:"object"`
	Data            []catalog.View `json:"data"`
	DisplayCurrency string         `json:"display_currency"`
	LastID          string         `json:"last_id,omitempty"`
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	opts, err := h.presentOptions(c)
	if err != nil {
		return handleError(c, err)
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return handleError(c, invalidRequest("limit must be a non-negative integer", err))
		}
	}

	models, err := h.store.List(c.Request().Context(), limit, c.QueryParam("after"))
	if err != nil {
		return handleError(c, err)
	}

	resp := ModelList{
		Object:          "list",
		Data:            make([]catalog.View, 0, len(models)),
		DisplayCurrency: opts.DisplayCurrency,
	}
	for _, m := range models {
		resp.Data = append(resp.Data, h.present(m, opts))
	}
	if n := len(models); n > 0 {
		resp.LastID = models[n-1].ID
	}
	return c.JSON(http.StatusOK, resp)
}

// GetModel handles GET /v1/models/:id
func (h *Handler) GetModel(c echo.Context) error {
	opts, err := h.presentOptions(c)
	if err != nil {
		return handleError(c, err)
	}
	m, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, h.present(m, opts))
}

// CreateModel handles POST /v1/models
func (h *Handler) CreateModel(c echo.Context) error {
	var m catalog.Model
	if err := json.NewDecoder(c.Request().Body).Decode(&m); err != nil {
		return handleError(c, invalidRequest("invalid request body: "+err.Error(), err))
	}
	if strings.TrimSpace(m.ID) == "" {
		m.ID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		return handleError(c, invalidRequest(err.Error(), err))
	}

	if err := h.store.Create(c.Request().Context(), &m); err != nil {
		return handleError(c, err)
	}
	opts, err := h.presentOptions(c)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, h.present(&m, opts))
}

// PricingFields is the editor form of a model's pricing.
type PricingFields struct {
	PriceModel    string         `json:"price_model"`
	PriceCurrency string         `json:"price_currency"`
	Fields        pricing.Fields `json:"fields"`
}

// GetPricingFields handles GET /v1/models/:id/pricing/fields
func (h *Handler) GetPricingFields(c echo.Context) error {
	m, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, PricingFields{
		PriceModel:    m.PriceModel,
		PriceCurrency: m.PriceCurrency,
		Fields:        pricing.ToFieldState(m.PriceModel, m.PriceData, m.PriceCurrency),
	})
}

// UpdatePricing handles PUT /v1/models/:id/pricing. The stored record is
// left untouched when the edited fields cannot be serialized.
func (h *Handler) UpdatePricing(c echo.Context) error {
	var req PricingFields
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return handleError(c, invalidRequest("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	m, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	tag := req.PriceModel
	if strings.TrimSpace(tag) == "" {
		tag = m.PriceModel
	}
	priceCurrency := currency.Code(req.PriceCurrency)
	if priceCurrency == "" {
		priceCurrency = currency.Code(req.Fields.Currency)
	}
	if priceCurrency == "" {
		priceCurrency = m.PriceCurrency
	}

	data, err := pricing.FromFieldState(tag, req.Fields, m.PriceData, priceCurrency)
	if err != nil {
		return handleError(c, err)
	}

	updated := catalog.Apply(*m, pricing.BuildPatch(tag, priceCurrency, data))
	if err := h.store.Update(ctx, &updated); err != nil {
		return handleError(c, err)
	}
	slog.Info("model pricing updated", "id", updated.ID, "price_model", updated.PriceModel)

	opts, err := h.presentOptions(c)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, h.present(&updated, opts))
}

// PreviewRequest is an ad-hoc pricing payload.
type PreviewRequest struct {
	PriceModel    string          `json:"price_model"`
	PriceCurrency string          `json:"price_currency"`
	PriceData     json.RawMessage `json:"price_data"`
	// PriceDataText carries unparsed editor text and wins over PriceData
	PriceDataText *string `json:"price_data_text"`
}

// PreviewResponse is the rendering of a PreviewRequest.
type PreviewResponse struct {
	Kind     pricing.Kind         `json:"kind"`
	Resolved bool                 `json:"pricing_resolved"`
	Pricing  pricing.Presentation `json:"pricing"`
}

// PreviewPricing handles POST /v1/pricing/preview
func (h *Handler) PreviewPricing(c echo.Context) error {
	var req PreviewRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return handleError(c, invalidRequest("invalid request body: "+err.Error(), err))
	}
	opts, err := h.presentOptions(c)
	if err != nil {
		return handleError(c, err)
	}

	data := req.PriceData
	if req.PriceDataText != nil {
		data, err = pricing.ValidatePayload([]byte(*req.PriceDataText))
		if err != nil {
			return handleError(c, err)
		}
	}

	rec := pricing.Normalize(req.PriceModel, data, currency.Code(req.PriceCurrency))
	resolved := pricing.Resolved(rec)
	h.metrics.NormalizationObserved(string(rec.Kind()), resolved)
	return c.JSON(http.StatusOK, PreviewResponse{
		Kind:     rec.Kind(),
		Resolved: resolved,
		Pricing:  pricing.Format(rec, opts.DisplayCurrency, opts.Table, opts.Unit, opts.Variant),
	})
}

// CurrencyResponse mirrors the currency config response with the committed
// state.
type CurrencyResponse struct {
	DisplayCurrency     string             `json:"displayCurrency"`
	Base                string             `json:"base"`
	ExchangeRates       map[string]float64 `json:"exchangeRates"`
	AvailableCurrencies []string           `json:"availableCurrencies"`
	UpdatedAt           *time.Time         `json:"updatedAt,omitempty"`
}

func currencyResponse(st currency.State) CurrencyResponse {
	resp := CurrencyResponse{
		DisplayCurrency:     st.DisplayCurrency,
		Base:                st.Table.Base,
		ExchangeRates:       st.Table.Rates,
		AvailableCurrencies: st.Available,
	}
	if !st.UpdatedAt.IsZero() {
		updated := st.UpdatedAt.UTC()
		resp.UpdatedAt = &updated
	}
	return resp
}

// GetCurrency handles GET /v1/currency. A stale table is refreshed first;
// a failed refresh still serves the previous table.
func (h *Handler) GetCurrency(c echo.Context) error {
	if err := h.rates.EnsureFresh(c.Request().Context()); err != nil {
		slog.Warn("serving stale currency rates", "error", err)
	}
	return c.JSON(http.StatusOK, currencyResponse(h.rates.State()))
}

// SetCurrency handles PUT /v1/currency
func (h *Handler) SetCurrency(c echo.Context) error {
	var req struct {
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return handleError(c, invalidRequest("invalid request body: "+err.Error(), err))
	}
	if strings.TrimSpace(req.Currency) == "" {
		return handleError(c, invalidRequest("currency is required", nil))
	}
	if err := h.rates.SetDisplayCurrency(req.Currency); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, currencyResponse(h.rates.State()))
}

// RefreshCurrency handles POST /v1/currency/refresh
func (h *Handler) RefreshCurrency(c echo.Context) error {
	if err := h.rates.Refresh(c.Request().Context()); err != nil {
		apiErr := classify(err)
		if apiErr.Type == ErrorTypeInternal {
			apiErr = &APIError{Type: ErrorTypeUpstream, Message: "currency refresh failed: " + err.Error(), Err: err}
		}
		return handleError(c, apiErr)
	}
	return c.JSON(http.StatusOK, currencyResponse(h.rates.State()))
}

// presentOptions reads currency, unit and variant query parameters.
func (h *Handler) presentOptions(c echo.Context) (catalog.PresentOptions, error) {
	st := h.rates.State()
	opts := catalog.PresentOptions{
		DisplayCurrency: st.DisplayCurrency,
		Table:           st.Table,
		Unit:            h.defaults.Unit,
		Variant:         h.defaults.Variant,
	}

	if raw := c.QueryParam("currency"); raw != "" {
		code := currency.Code(raw)
		if !st.Table.Has(code) {
			return opts, invalidRequest("unsupported currency: "+code, currency.ErrUnknownCurrency)
		}
		opts.DisplayCurrency = code
	}
	if raw := c.QueryParam("unit"); raw != "" {
		unit, ok := pricing.ParseUnit(raw)
		if !ok {
			return opts, invalidRequest("unit must be 1K or 1M", nil)
		}
		opts.Unit = unit
	}
	if raw := c.QueryParam("variant"); raw != "" {
		variant, ok := pricing.ParseVariant(raw)
		if !ok {
			return opts, invalidRequest("variant must be compact or detailed", nil)
		}
		opts.Variant = variant
	}
	return opts, nil
}

func (h *Handler) present(m *catalog.Model, opts catalog.PresentOptions) catalog.View {
	view := catalog.Present(m, opts)
	h.metrics.NormalizationObserved(string(view.Pricing.Kind), view.Resolved)
	return view
}
