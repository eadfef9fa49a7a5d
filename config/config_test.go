package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no stray config.yaml or
// .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "")

	result, err := Load()
	require.NoError(t, err)
	assert.Empty(t, result.Path)
	assert.Equal(t, "8080", result.Config.Server.Port)
	assert.Equal(t, "USD", result.Config.Currency.Base)
	assert.Equal(t, "local", result.Config.Cache.Type)
	assert.Equal(t, "1M", result.Config.Pricing.DefaultUnit)
}

func TestLoad_FromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "9090")

	result, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", result.Config.Server.Port)
}

func TestLoad_YAMLWithPlaceholders(t *testing.T) {
	dir := chdirTemp(t)
	content := `
server:
  port: "${TEST_PORT_DEFAULTS:-9999}"
currency:
  base: eur
  refresh_interval: ${TEST_REFRESH:-900}
  rates:
    USD: 1.1
    JPY: 160
  available: [EUR, USD]
storage:
  type: memory
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	t.Setenv("TEST_PORT_DEFAULTS", "")
	t.Setenv("TEST_REFRESH", "")

	result, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", result.Path)

	cfg := result.Config
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "eur", cfg.Currency.Base)
	assert.Equal(t, 900, cfg.Currency.RefreshInterval)
	assert.InDelta(t, 160.0, cfg.Currency.Rates["JPY"], 1e-9)
	assert.Equal(t, []string{"EUR", "USD"}, cfg.Currency.Available)
	assert.Equal(t, "memory", cfg.Storage.Type)
	// untouched sections keep their defaults
	assert.Equal(t, "data/pricecatalog.db", cfg.Storage.SQLite.Path)
}

func TestLoad_YAMLEnvOverride(t *testing.T) {
	dir := chdirTemp(t)
	content := "server:\n  port: \"${TEST_PORT_DEFAULTS:-9999}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	t.Setenv("TEST_PORT_DEFAULTS", "1111")

	result, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "1111", result.Config.Server.Port)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=7000\nCATALOG_SEED_FILE=seed.yaml\n"), 0o644))
	t.Setenv("PORT", "7100")
	// Setenv registers the restore; the variable must be unset for .env to apply
	t.Setenv("CATALOG_SEED_FILE", "")
	require.NoError(t, os.Unsetenv("CATALOG_SEED_FILE"))

	result, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7100", result.Config.Server.Port)
	assert.Equal(t, "seed.yaml", result.Config.Catalog.SeedFile)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.yaml")
}

func TestValidate(t *testing.T) {
	t.Run("clamps short refresh interval", func(t *testing.T) {
		cfg := buildDefaultConfig()
		cfg.Currency.RefreshInterval = 60
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 600, cfg.Currency.RefreshInterval)
		assert.Equal(t, MinRefreshInterval, cfg.Currency.RefreshIntervalDuration())
	})

	t.Run("unknown storage type", func(t *testing.T) {
		cfg := buildDefaultConfig()
		cfg.Storage.Type = "cassandra"
		assert.ErrorContains(t, cfg.Validate(), "storage type")
	})

	t.Run("unknown cache type", func(t *testing.T) {
		cfg := buildDefaultConfig()
		cfg.Cache.Type = "memcached"
		assert.ErrorContains(t, cfg.Validate(), "cache type")
	})

	t.Run("redis requires url", func(t *testing.T) {
		cfg := buildDefaultConfig()
		cfg.Cache.Type = "redis"
		assert.ErrorContains(t, cfg.Validate(), "redis.url")
	})

	t.Run("non-positive static rate", func(t *testing.T) {
		cfg := buildDefaultConfig()
		cfg.Currency.Rates = map[string]float64{"EUR": 0}
		assert.ErrorContains(t, cfg.Validate(), "EUR")
	})
}
