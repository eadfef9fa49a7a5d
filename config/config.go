// Package config provides configuration management for the application.
//
// Values are layered: built-in defaults, then an optional config.yaml with
// ${VAR} and ${VAR:-default} placeholders, then environment variables. A .env
// file in the working directory is loaded first and never overrides variables
// already present in the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinRefreshInterval is the shortest allowed interval between rate refreshes.
const MinRefreshInterval = 10 * time.Minute

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LogConfig      `yaml:"logging"`
	HTTP     HTTPConfig     `yaml:"http"`
	Currency CurrencyConfig `yaml:"currency"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Pricing  PricingConfig  `yaml:"pricing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// MasterKey enables bearer-token auth when non-empty
	MasterKey string `yaml:"master_key"`
	// BodySizeLimit is an echo size string such as "1M"
	BodySizeLimit string `yaml:"body_size_limit"`
}

// LogConfig controls the process logger
type LogConfig struct {
	// Format is "json", "pretty" or "auto" (pretty on a terminal)
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// HTTPConfig holds outbound HTTP client timeouts in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// CurrencyConfig controls exchange rates and the display currency
type CurrencyConfig struct {
	Base           string `yaml:"base"`
	DefaultDisplay string `yaml:"default_display"`
	// SourceURL serves the currency config response; when empty the
	// static rates below are used
	SourceURL string `yaml:"source_url"`
	// RefreshInterval and FetchTimeout are in seconds
	RefreshInterval int                `yaml:"refresh_interval"`
	FetchTimeout    int                `yaml:"fetch_timeout"`
	Rates           map[string]float64 `yaml:"rates"`
	Available       []string           `yaml:"available"`
}

// CacheConfig selects where the last good rate table is kept
type CacheConfig struct {
	// Type is "local" or "redis"
	Type  string           `yaml:"type"`
	Local LocalCacheConfig `yaml:"local"`
	Redis RedisCacheConfig `yaml:"redis"`
}

// LocalCacheConfig holds file cache settings
type LocalCacheConfig struct {
	Dir string `yaml:"dir"`
}

// RedisCacheConfig holds Redis cache settings
type RedisCacheConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
	// TTL is in seconds
	TTL int `yaml:"ttl"`
}

// StorageConfig selects the model record backend
type StorageConfig struct {
	// Type is "memory", "sqlite", "postgresql" or "mongodb"
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL settings
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB settings
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// CatalogConfig holds catalog bootstrap settings
type CatalogConfig struct {
	// SeedFile is a YAML or JSON file of models inserted when missing
	SeedFile string `yaml:"seed_file"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// PricingConfig holds presentation defaults
type PricingConfig struct {
	// DefaultUnit is "1K" or "1M"
	DefaultUnit string `yaml:"default_unit"`
	// DefaultVariant is "compact" or "detailed"
	DefaultVariant string `yaml:"default_variant"`
}

// LoadResult is the outcome of Load.
type LoadResult struct {
	Config *Config
	// Path is the config file that was read, empty when none was found
	Path string
}

// configPaths are checked in order; the first existing file wins.
var configPaths = []string{"config/config.yaml", "config.yaml"}

// Load builds the configuration from defaults, config.yaml, .env and the
// environment, then validates it.
func Load() (*LoadResult, error) {
	// .env is optional; Load never overrides variables already set
	_ = godotenv.Load()

	cfg := buildDefaultConfig()
	result := &LoadResult{Config: cfg}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := applyYAML(cfg, data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		result.Path = path
		break
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: "1M",
		},
		Logging: LogConfig{
			Format: "auto",
			Level:  "info",
		},
		HTTP: HTTPConfig{
			Timeout:               30,
			ResponseHeaderTimeout: 30,
		},
		Currency: CurrencyConfig{
			Base:            "USD",
			DefaultDisplay:  "USD",
			RefreshInterval: 3600,
			FetchTimeout:    15,
		},
		Cache: CacheConfig{
			Type:  "local",
			Local: LocalCacheConfig{Dir: ".cache"},
			Redis: RedisCacheConfig{TTL: 86400},
		},
		Storage: StorageConfig{
			Type:    "sqlite",
			SQLite:  SQLiteConfig{Path: "data/pricecatalog.db"},
			MongoDB: MongoDBConfig{Database: "pricecatalog"},
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		Pricing: PricingConfig{
			DefaultUnit:    "1M",
			DefaultVariant: "compact",
		},
	}
}

// applyYAML expands placeholders in the raw file and decodes it over cfg.
// Expansion runs on the node tree so only scalar values are affected.
func applyYAML(cfg *Config, data []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind == 0 {
		return nil
	}
	expandNode(&root)
	return root.Decode(cfg)
}

func expandNode(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		expanded := expandString(n.Value)
		if expanded != n.Value {
			// re-resolve so "${TIMEOUT:-30}" can land in an int field
			n.Value = expanded
			n.Tag = ""
			n.Style = 0
		}
		return
	}
	for _, c := range n.Content {
		expandNode(c)
	}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} with the variable's value and ${VAR:-default}
// with the value or the default when the variable is unset or empty.
// Placeholders without a default whose variable is unset or empty are left as is.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if parts[2] != "" {
			return parts[3]
		}
		return match
	})
}

// applyEnvOverrides applies environment variables on top of cfg. Numeric and
// boolean variables that fail to parse are reported as errors.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"PORT", &cfg.Server.Port},
		{"PRICECATALOG_MASTER_KEY", &cfg.Server.MasterKey},
		{"BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit},
		{"LOG_FORMAT", &cfg.Logging.Format},
		{"LOG_LEVEL", &cfg.Logging.Level},
		{"CURRENCY_BASE", &cfg.Currency.Base},
		{"CURRENCY_DEFAULT_DISPLAY", &cfg.Currency.DefaultDisplay},
		{"CURRENCY_SOURCE_URL", &cfg.Currency.SourceURL},
		{"CACHE_TYPE", &cfg.Cache.Type},
		{"CACHE_DIR", &cfg.Cache.Local.Dir},
		{"REDIS_URL", &cfg.Cache.Redis.URL},
		{"REDIS_KEY", &cfg.Cache.Redis.Key},
		{"STORAGE_TYPE", &cfg.Storage.Type},
		{"SQLITE_PATH", &cfg.Storage.SQLite.Path},
		{"POSTGRES_URL", &cfg.Storage.PostgreSQL.URL},
		{"MONGODB_URL", &cfg.Storage.MongoDB.URL},
		{"MONGODB_DATABASE", &cfg.Storage.MongoDB.Database},
		{"CATALOG_SEED_FILE", &cfg.Catalog.SeedFile},
		{"METRICS_ENDPOINT", &cfg.Metrics.Endpoint},
		{"PRICING_DEFAULT_UNIT", &cfg.Pricing.DefaultUnit},
		{"PRICING_DEFAULT_VARIANT", &cfg.Pricing.DefaultVariant},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"HTTP_TIMEOUT", &cfg.HTTP.Timeout},
		{"HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout},
		{"CURRENCY_REFRESH_INTERVAL", &cfg.Currency.RefreshInterval},
		{"CURRENCY_FETCH_TIMEOUT", &cfg.Currency.FetchTimeout},
		{"REDIS_TTL", &cfg.Cache.Redis.TTL},
		{"POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q is not an integer", i.key, v)
		}
		*i.dst = n
	}

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid value for METRICS_ENABLED: %q is not a boolean", v)
		}
		cfg.Metrics.Enabled = b
	}

	if v := os.Getenv("CURRENCY_AVAILABLE"); v != "" {
		var codes []string
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, c)
			}
		}
		cfg.Currency.Available = codes
	}
	return nil
}

// Validate rejects unknown backend types and clamps intervals that are
// below their minimum.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory", "sqlite", "postgresql", "mongodb":
	default:
		return fmt.Errorf("unknown storage type: %q", c.Storage.Type)
	}
	switch c.Cache.Type {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown cache type: %q", c.Cache.Type)
	}
	if c.Cache.Type == "redis" && c.Cache.Redis.URL == "" {
		return fmt.Errorf("cache.redis.url is required when cache type is redis")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "json", "pretty":
	default:
		return fmt.Errorf("unknown log format: %q", c.Logging.Format)
	}

	if minSeconds := int(MinRefreshInterval / time.Second); c.Currency.RefreshInterval < minSeconds {
		slog.Warn("currency refresh interval below minimum, clamping",
			"configured_seconds", c.Currency.RefreshInterval,
			"minimum_seconds", minSeconds,
		)
		c.Currency.RefreshInterval = minSeconds
	}
	if c.Currency.FetchTimeout <= 0 {
		c.Currency.FetchTimeout = 15
	}
	for code, rate := range c.Currency.Rates {
		if rate <= 0 {
			return fmt.Errorf("currency rate for %s must be positive", code)
		}
	}
	return nil
}

// RefreshIntervalDuration returns the currency refresh interval as a duration.
func (c CurrencyConfig) RefreshIntervalDuration() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

// FetchTimeoutDuration returns the rate fetch timeout as a duration.
func (c CurrencyConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}
