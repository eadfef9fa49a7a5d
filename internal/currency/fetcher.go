package currency

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/andybalholm/brotli"

	"pricecatalog/internal/httpclient"
)

const maxConfigBodySize = 1 << 20 // 1 MB

// ConfigResponse is the currency configuration document served by a rate source.
type ConfigResponse struct {
	DisplayCurrency     string             `json:"displayCurrency"`
	ExchangeRates       map[string]float64 `json:"exchangeRates"`
	AvailableCurrencies []string           `json:"availableCurrencies"`
}

// Source supplies currency configuration.
type Source interface {
	Fetch(ctx context.Context) (*ConfigResponse, error)
}

// HTTPSource fetches the currency configuration from a URL.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source for url. A nil client uses the shared
// client factory defaults.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}
	return &HTTPSource{url: url, client: client}
}

// Fetch downloads and parses the currency configuration.
func (s *HTTPSource) Fetch(ctx context.Context) (*ConfigResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching currency config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, s.url)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxConfigBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(raw) > maxConfigBodySize {
		return nil, fmt.Errorf("response body too large (exceeds %d bytes)", maxConfigBodySize)
	}

	return ParseConfig(raw)
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return resp.Body, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

// ParseConfig decodes a currency configuration document.
func ParseConfig(raw []byte) (*ConfigResponse, error) {
	var resp ConfigResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing currency config JSON: %w", err)
	}
	return &resp, nil
}

// StaticSource serves a fixed configuration, typically from the config file.
type StaticSource struct {
	DisplayCurrency string
	Rates           map[string]float64
	Available       []string
}

// Fetch returns a copy of the static configuration.
func (s StaticSource) Fetch(context.Context) (*ConfigResponse, error) {
	return &ConfigResponse{
		DisplayCurrency:     s.DisplayCurrency,
		ExchangeRates:       maps.Clone(s.Rates),
		AvailableCurrencies: slices.Clone(s.Available),
	}, nil
}

// TableFromResponse builds a table pivoted on base from a configuration
// response. It returns the table, the convertible subset of the available
// currencies, and the response's display currency when it is convertible.
func TableFromResponse(resp *ConfigResponse, base string) (Table, []string, string) {
	if resp == nil {
		table := NewTable(base, nil)
		return table, table.Codes(), ""
	}

	table := NewTable(base, resp.ExchangeRates)
	available := restrictAvailable(table, resp.AvailableCurrencies)

	display := Code(resp.DisplayCurrency)
	if !table.Has(display) {
		display = ""
	}
	return table, available, display
}
