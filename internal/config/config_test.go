package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/stockledger")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Database.Backend)
	assert.Equal(t, LockLocal, cfg.Lock.Backend)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 5, cfg.Ledger.CASMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Interval)
	assert.True(t, cfg.App.Development())
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_BACKEND", "MEMORY")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOCK_TTL", "45s")
	t.Setenv("RECONCILE_REPAIR", "true")
	t.Setenv("AUTO_APPROVE_RULE", `"admin" in roles`)
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Database.Backend)
	assert.Equal(t, LockRedis, cfg.Lock.Backend)
	assert.Equal(t, 45*time.Second, cfg.Lock.TTL)
	assert.True(t, cfg.Reconcile.Repair)
	assert.Equal(t, `"admin" in roles`, cfg.Ledger.AutoApproveRule)
	assert.Zero(t, cfg.Redis.DB, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("CAS_MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown STORAGE_BACKEND")
	assert.ErrorContains(t, err, "JWT_SECRET is required")
	assert.ErrorContains(t, err, "CAS_MAX_ATTEMPTS")
}
