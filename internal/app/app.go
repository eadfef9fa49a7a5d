// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the price catalog server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"pricecatalog/config"
	"pricecatalog/internal/cache"
	"pricecatalog/internal/catalog"
	"pricecatalog/internal/currency"
	"pricecatalog/internal/httpclient"
	"pricecatalog/internal/observability"
	"pricecatalog/internal/pricing"
	"pricecatalog/internal/server"
	"pricecatalog/internal/storage"
)

const rateCacheFile = "currency_rates.json"

// App represents the main application with all its dependencies.
type App struct {
	config  *config.Config
	catalog *catalog.Result
	cache   cache.Cache
	rates   *currency.Service
	metrics *observability.Metrics
	server  *server.Server

	stopRefresh func()

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// Source overrides the currency source derived from configuration.
	Source currency.Source
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}
	appCfg := cfg.AppConfig.Config

	app := &App{config: appCfg}
	if appCfg.Metrics.Enabled {
		app.metrics = observability.NewMetrics()
	}

	rateCache, err := newRateCache(appCfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate cache: %w", err)
	}
	app.cache = rateCache

	catalogResult, err := catalog.New(ctx, storage.Config{
		Type:   appCfg.Storage.Type,
		SQLite: storage.SQLiteConfig{Path: appCfg.Storage.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      appCfg.Storage.PostgreSQL.URL,
			MaxConns: appCfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      appCfg.Storage.MongoDB.URL,
			Database: appCfg.Storage.MongoDB.Database,
		},
	})
	if err != nil {
		closeErr := app.cache.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize catalog: %w (also: cache close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	app.catalog = catalogResult

	if path := appCfg.Catalog.SeedFile; path != "" {
		if err := seedCatalog(ctx, catalogResult.Store, path); err != nil {
			closeErr := errors.Join(app.catalog.Close(), app.cache.Close())
			if closeErr != nil {
				return nil, fmt.Errorf("failed to seed catalog: %w (also: close error: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
	}

	source := cfg.Source
	if source == nil {
		source = newRateSource(appCfg)
	}
	opts := currency.Options{
		Source:       source,
		Cache:        rateCache,
		Base:         appCfg.Currency.Base,
		StaleAfter:   appCfg.Currency.RefreshIntervalDuration(),
		FetchTimeout: appCfg.Currency.FetchTimeoutDuration(),
	}
	if app.metrics != nil {
		opts.Hooks = app.metrics
	}
	app.rates = currency.NewService(opts)
	if source != nil {
		app.rates.InitializeAsync(ctx)
		app.stopRefresh = app.rates.StartBackgroundRefresh(appCfg.Currency.RefreshIntervalDuration())
	} else if _, err := app.rates.LoadFromCache(ctx); err != nil {
		slog.Warn("failed to load currency rates from cache", "error", err)
	}

	app.logStartupInfo(source != nil)

	unit, _ := pricing.ParseUnit(appCfg.Pricing.DefaultUnit)
	variant, _ := pricing.ParseVariant(appCfg.Pricing.DefaultVariant)
	app.server = server.New(catalogResult.Store, app.rates, &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		Metrics:         app.metrics,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		Defaults:        server.Defaults{Unit: unit, Variant: variant},
	})

	return app, nil
}

// Rates returns the currency rate service.
func (a *App) Rates() *currency.Service {
	return a.rates
}

// Store returns the model record store.
func (a *App) Store() catalog.Store {
	if a.catalog == nil {
		return nil
	}
	return a.catalog.Store
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// HTTP server, rate refresh loop, catalog store, rate cache.
//
// Shutdown is idempotent. It attempts every close step and returns a joined
// error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.stopRefresh != nil {
		a.stopRefresh()
	}

	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			slog.Error("catalog close error", "error", err)
			errs = append(errs, fmt.Errorf("catalog close: %w", err))
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Error("rate cache close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func newRateCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			URL: cfg.Redis.URL,
			Key: cfg.Redis.Key,
			TTL: time.Duration(cfg.Redis.TTL) * time.Second,
		})
	default:
		return cache.NewLocalCache(filepath.Join(cfg.Local.Dir, rateCacheFile)), nil
	}
}

// newRateSource prefers the remote source URL, then the static rates from
// the config file. It returns nil when neither is configured.
func newRateSource(cfg *config.Config) currency.Source {
	cc := cfg.Currency
	if cc.SourceURL != "" {
		clientCfg := httpclient.DefaultConfig().WithTimeouts(cfg.HTTP.Timeout, cfg.HTTP.ResponseHeaderTimeout)
		return currency.NewHTTPSource(cc.SourceURL, httpclient.NewHTTPClient(&clientCfg))
	}
	if len(cc.Rates) > 0 {
		return currency.StaticSource{
			DisplayCurrency: cc.DefaultDisplay,
			Rates:           cc.Rates,
			Available:       cc.Available,
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, store catalog.Store, path string) error {
	models, err := catalog.LoadSeed(path)
	if err != nil {
		return err
	}
	_, err = catalog.Seed(ctx, store, models)
	return err
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(hasSource bool) {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: PRICECATALOG_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set PRICECATALOG_MASTER_KEY environment variable to secure the catalog")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type)
	slog.Info("rate cache configured", "type", cfg.Cache.Type)

	switch {
	case cfg.Currency.SourceURL != "":
		slog.Info("currency rates from remote source",
			"url", cfg.Currency.SourceURL,
			"refresh_interval", cfg.Currency.RefreshIntervalDuration(),
		)
	case hasSource:
		slog.Info("currency rates from static configuration", "codes", len(cfg.Currency.Rates))
	default:
		slog.Warn("no currency source configured, prices shown in base currency only",
			"base", cfg.Currency.Base)
	}
}
