package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"pricecatalog/internal/catalog"
	"pricecatalog/internal/currency"
	"pricecatalog/internal/observability"
)

const (
	defaultBodySizeLimit = "1M"
	defaultMetricsPath   = "/metrics"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey string // Optional: Master key for authentication
	// Metrics is served at MetricsEndpoint when non-nil
	Metrics         *observability.Metrics
	MetricsEndpoint string
	BodySizeLimit   string // echo size string, default "1M"
	Defaults        Defaults
}

// New creates a new HTTP server
func New(store catalog.Store, rates *currency.Service, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(store, rates, cfg.Metrics, cfg.Defaults)

	authSkipPaths := []string{"/health"}
	metricsPath := ""
	if cfg.Metrics != nil {
		metricsPath = resolveMetricsPath(cfg.MetricsEndpoint)
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	// Global middleware stack (order matters)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				slog.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.Middleware())
	}

	bodySizeLimit := cfg.BodySizeLimit
	if bodySizeLimit == "" {
		bodySizeLimit = defaultBodySizeLimit
	}
	e.Use(middleware.BodyLimit(bodySizeLimit))

	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.Metrics != nil {
		e.GET(metricsPath, echo.WrapHandler(cfg.Metrics.Handler()))
	}

	// API routes
	v1 := e.Group("/v1")
	v1.GET("/models", handler.ListModels)
	v1.POST("/models", handler.CreateModel)
	v1.GET("/models/:id", handler.GetModel)
	v1.GET("/models/:id/pricing/fields", handler.GetPricingFields)
	v1.PUT("/models/:id/pricing", handler.UpdatePricing)
	v1.POST("/pricing/preview", handler.PreviewPricing)
	v1.GET("/currency", handler.GetCurrency)
	v1.PUT("/currency", handler.SetCurrency)
	v1.POST("/currency/refresh", handler.RefreshCurrency)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// resolveMetricsPath cleans the configured path and falls back to /metrics
// when it would shadow an API or health route.
func resolveMetricsPath(endpoint string) string {
	if endpoint == "" {
		return defaultMetricsPath
	}
	p := path.Clean("/" + endpoint)
	if p == "/" || p == "/health" || p == "/v1" || strings.HasPrefix(p, "/v1/") {
		return defaultMetricsPath
	}
	return p
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
