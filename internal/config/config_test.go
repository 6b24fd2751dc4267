package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGIN", "LOG_LEVEL", "STORE_DRIVER", "DATABASE_URL", "MONGO_URI", "MONGO_DATABASE",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "AUTH_SECRET", "ACCESS_TOKEN_TTL_MINUTES",
		"REPORT_TIMEZONE", "DEFAULT_TAX_RATE", "TOP_PRODUCTS_LIMIT", "SESSION_IDLE_MINUTES",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "kedaipos", cfg.MongoDatabase)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, time.Hour, cfg.SessionIdle())
	assert.Equal(t, 5, cfg.TopProductsLimit)

	rate, err := cfg.TaxRate()
	require.NoError(t, err)
	assert.Equal(t, "15", rate.String())
}

func TestLoadInfersDriverFromURLs(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)

	t.Setenv("DATABASE_URL", "postgres://localhost/kedai")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPORT_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("DEFAULT_TAX_RATE", "120")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = Load()
	assert.Error(t, err)
}

func TestLocationUsesConfiguredZone(t *testing.T) {
	cfg := Config{ReportTimezone: "Asia/Jakarta"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}
