package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no placeholders", input: "simple-string", expected: "simple-string"},
		{
			name:     "simple variable expansion",
			input:    "${REDIS_URL}",
			envVars:  map[string]string{"REDIS_URL": "redis://cache:6379"},
			expected: "redis://cache:6379",
		},
		{
			name:     "multiple variables",
			input:    "${SCHEME}://${HOST}:${PORT}",
			envVars:  map[string]string{"SCHEME": "https", "HOST": "rates.example.com", "PORT": "8443"},
			expected: "https://rates.example.com:8443",
		},
		{
			name:     "default used when env var missing",
			input:    "${CURRENCY_BASE:-USD}",
			expected: "USD",
		},
		{
			name:     "default used when env var empty",
			input:    "${CURRENCY_BASE:-USD}",
			envVars:  map[string]string{"CURRENCY_BASE": ""},
			expected: "USD",
		},
		{
			name:     "env var wins over default",
			input:    "${CURRENCY_BASE:-USD}",
			envVars:  map[string]string{"CURRENCY_BASE": "EUR"},
			expected: "EUR",
		},
		{
			name:     "default with colon",
			input:    "${SOURCE_URL:-http://localhost:8080/config}",
			expected: "http://localhost:8080/config",
		},
		{
			name:     "unresolved variable kept",
			input:    "${MISSING_VAR}",
			expected: "${MISSING_VAR}",
		},
		{
			name:     "partially resolved",
			input:    "prefix-${VAR1}-${VAR2}-${VAR3}-suffix",
			envVars:  map[string]string{"VAR1": "a", "VAR3": "c"},
			expected: "prefix-a-${VAR2}-c-suffix",
		},
		{
			name:     "empty default",
			input:    "${PRICECATALOG_MASTER_KEY:-}",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"REDIS_URL", "SCHEME", "HOST", "PORT", "CURRENCY_BASE", "SOURCE_URL", "MISSING_VAR", "VAR1", "VAR2", "VAR3", "PRICECATALOG_MASTER_KEY"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			if got := expandString(tt.input); got != tt.expected {
				t.Errorf("expandString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "3000" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "3000")
				}
			},
		},
		{
			name:    "master key override",
			envVars: map[string]string{"PRICECATALOG_MASTER_KEY": "my-secret"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.MasterKey != "my-secret" {
					t.Errorf("Server.MasterKey = %q, want %q", cfg.Server.MasterKey, "my-secret")
				}
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Storage.Type != "postgresql" {
					t.Errorf("Storage.Type = %q, want postgresql", cfg.Storage.Type)
				}
				if cfg.Storage.PostgreSQL.URL != "postgres://localhost/test" {
					t.Errorf("Storage.PostgreSQL.URL = %q", cfg.Storage.PostgreSQL.URL)
				}
				if cfg.Storage.PostgreSQL.MaxConns != 20 {
					t.Errorf("Storage.PostgreSQL.MaxConns = %d, want 20", cfg.Storage.PostgreSQL.MaxConns)
				}
			},
		},
		{
			name:    "currency overrides",
			envVars: map[string]string{"CURRENCY_BASE": "EUR", "CURRENCY_REFRESH_INTERVAL": "1800", "CURRENCY_AVAILABLE": "usd, eur,,jpy"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Currency.Base != "EUR" {
					t.Errorf("Currency.Base = %q, want EUR", cfg.Currency.Base)
				}
				if cfg.Currency.RefreshInterval != 1800 {
					t.Errorf("Currency.RefreshInterval = %d, want 1800", cfg.Currency.RefreshInterval)
				}
				require.Equal(t, []string{"usd", "eur", "jpy"}, cfg.Currency.Available)
			},
		},
		{
			name:    "metrics enabled",
			envVars: map[string]string{"METRICS_ENABLED": "true", "METRICS_ENDPOINT": "/internal/metrics"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Metrics.Enabled {
					t.Error("Metrics.Enabled should be true")
				}
				if cfg.Metrics.Endpoint != "/internal/metrics" {
					t.Errorf("Metrics.Endpoint = %q", cfg.Metrics.Endpoint)
				}
			},
		},
		{
			name: "no env vars set preserves defaults",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "8080" {
					t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
				}
				if cfg.Storage.Type != "sqlite" {
					t.Errorf("Storage.Type = %q, want sqlite", cfg.Storage.Type)
				}
				if cfg.Currency.RefreshInterval != 3600 {
					t.Errorf("Currency.RefreshInterval = %d, want 3600", cfg.Currency.RefreshInterval)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := buildDefaultConfig()
			require.NoError(t, applyEnvOverrides(cfg))
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnvOverridesInvalidValues(t *testing.T) {
	tests := map[string]string{
		"HTTP_TIMEOUT":    "soon",
		"METRICS_ENABLED": "maybe",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			err := applyEnvOverrides(buildDefaultConfig())
			require.Error(t, err)
			require.Contains(t, err.Error(), key)
		})
	}
}
