// Package observability exposes Prometheus collectors for the catalog.
package observability

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricecatalog"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	normalizations *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	rates          prometheus.Gauge
	requests       *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		normalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "normalizations_total",
			Help:      "Pricing payloads normalized, by record kind and whether rates resolved.",
		}, []string{"kind", "resolved"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "currency",
			Name:      "refreshes_total",
			Help:      "Exchange rate refresh attempts by result.",
		}, []string{"result"}),
		rates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "currency",
			Name:      "rates",
			Help:      "Currency codes in the committed rate table.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.normalizations,
		m.refreshes,
		m.rates,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NormalizationObserved counts one normalized record.
func (m *Metrics) NormalizationObserved(kind string, resolved bool) {
	if m == nil {
		return
	}
	m.normalizations.WithLabelValues(kind, strconv.FormatBool(resolved)).Inc()
}

// RefreshCompleted counts a rate refresh and records the table size after a
// successful one.
func (m *Metrics) RefreshCompleted(result string, codes int) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
	if result == "success" {
		m.rates.Set(float64(codes))
	}
}

// Middleware counts requests by matched route so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if m == nil {
				return err
			}
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			return err
		}
	}
}
