package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.App.StoreBackend)
	assert.Equal(t, 500, cfg.App.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, "VN", cfg.App.PhoneRegion)
	assert.Equal(t, "recon", cfg.Redis.Prefix)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQL")
	t.Setenv("DB_DIALECT", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/recon.db")
	t.Setenv("BATCH_SIZE", "not-a-number")
	t.Setenv("OCR_TIMEOUT", "5s")
	t.Setenv("NODE_ID", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQL, cfg.App.StoreBackend)
	assert.Equal(t, "/tmp/recon.db", cfg.Database.DSN())
	assert.Equal(t, 500, cfg.App.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, int64(7), cfg.App.NodeID)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"STORE_BACKEND", "mongo"},
		{"OCR_TIMEOUT", "soon"},
		{"REDIS_DB", "x"},
		{"NODE_ID", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Dialect: "postgres", Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}

func TestLoadMatchingConfig_DefaultsWithoutFile(t *testing.T) {
	holder, err := LoadMatchingConfig(t.TempDir())
	require.NoError(t, err)
	cfg, want := holder.Get(), DefaultMatchingConfig()
	assert.True(t, cfg.AmountTolerance.Equal(want.AmountTolerance))
	assert.Equal(t, want.DefaultLimit, cfg.DefaultLimit)
	assert.Equal(t, want.MaxLimit, cfg.MaxLimit)
	assert.Equal(t, want.AdminLockTTL, cfg.AdminLockTTL)
}

func TestLoadMatchingConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `matching:
  amount_tolerance: "0.5"
  default_limit: 20
  max_limit: 100
  admin_lock_ttl: 2m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reconciliation.yml"), []byte(content), 0644))

	holder, err := LoadMatchingConfig(dir)
	require.NoError(t, err)

	cfg := holder.Get()
	assert.True(t, cfg.AmountTolerance.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 20, cfg.DefaultLimit)
	assert.Equal(t, 100, cfg.MaxLimit)
	assert.Equal(t, 2*time.Minute, cfg.AdminLockTTL)
}

func TestLoadMatchingConfig_EnvOverride(t *testing.T) {
	t.Setenv("RECON_MATCHING_DEFAULT_LIMIT", "10")

	holder, err := LoadMatchingConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 10, holder.Get().DefaultLimit)
}

func TestLoadMatchingConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	content := "matching:\n  default_limit: 100\n  max_limit: 10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reconciliation.yml"), []byte(content), 0644))

	_, err := LoadMatchingConfig(dir)
	assert.Error(t, err)
}
