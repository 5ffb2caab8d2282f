package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"JURISDICTION_SEED_FILE": "testdata/seed.json",
		"DATABASE_URL":           "",
		"REDIS_URL":              "",
		"DEFAULT_CURRENCY":       "",
		"JURISDICTION_CACHE_TTL": "",
		"RATE_LIMIT":             "",
		"OBS_ENABLE_TRACING":     "",
		"PORT":                   "",
	})
	require.NoError(t, err)
	require.Equal(t, "USD", cfg.DefaultCurrency.Code())
	require.Equal(t, 10*time.Minute, cfg.JurisdictionCacheTTL)
	require.Equal(t, "300-M", cfg.RateLimit)
	require.True(t, cfg.TracingEnabled)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":               "postgres://localhost/toko",
		"DEFAULT_CURRENCY":           "jpy",
		"JURISDICTION_CACHE_TTL":     "90s",
		"CORS_ALLOWED_ORIGINS":       "https://a.test, https://b.test",
		"MIGRATE_ON_START":           "yes",
		"OBS_ENABLE_TRACING":         "off",
		"OBS_TRACING_SAMPLING_RATIO": "0.25",
		"PORT":                       ":9090",
	})
	require.NoError(t, err)
	require.Equal(t, "JPY", cfg.DefaultCurrency.Code())
	require.Equal(t, int32(0), cfg.DefaultCurrency.Digits())
	require.Equal(t, 90*time.Second, cfg.JurisdictionCacheTTL)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.MigrateOnStart)
	require.False(t, cfg.TracingEnabled)
	require.Equal(t, 0.25, cfg.TracingSamplingRatio)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRequiresJurisdictionSource(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL":           "",
		"JURISDICTION_SEED_FILE": "",
	})
	require.Error(t, err)

	_, err = LoadForTests(map[string]string{
		"JURISDICTION_SEED_FILE": "seed.json",
		"DATABASE_URL":           "",
		"MIGRATE_ON_START":       "true",
	})
	require.Error(t, err)

	_, err = LoadForTests(map[string]string{
		"DATABASE_URL":     "postgres://localhost/toko",
		"DEFAULT_CURRENCY": "NOPE",
	})
	require.Error(t, err)
}
