package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("QARZHY_JWT_SECRET", "")
	t.Setenv("QARZHY_PG_DSN", "postgres://localhost/qarzhy")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QARZHY_JWT_SECRET")
}

func TestLoadRequiresDSNOutsideDevMode(t *testing.T) {
	t.Setenv("QARZHY_JWT_SECRET", "s3cret")
	t.Setenv("QARZHY_PG_DSN", "")
	t.Setenv("QARZHY_DEV_MODE", "false")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QARZHY_PG_DSN")

	t.Setenv("QARZHY_DEV_MODE", "true")
	_, err = Load()
	require.NoError(t, err, "dev mode should not require a DSN")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QARZHY_JWT_SECRET", "s3cret")
	t.Setenv("QARZHY_PG_DSN", "postgres://localhost/qarzhy")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.False(t, cfg.DevMode)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QARZHY_JWT_SECRET", "s3cret")
	t.Setenv("QARZHY_PG_DSN", "postgres://localhost/qarzhy")
	t.Setenv("QARZHY_ACCESS_TTL", "5m")
	t.Setenv("QARZHY_REFRESH_TTL_DAYS", "30")
	t.Setenv("QARZHY_BCRYPT_COST", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("QARZHY_JWT_SECRET", "s3cret")
	t.Setenv("QARZHY_PG_DSN", "postgres://localhost/qarzhy")

	t.Setenv("QARZHY_ACCESS_TTL", "not-a-duration")
	_, err := Load()
	require.Error(t, err, "malformed duration must be rejected")
	t.Setenv("QARZHY_ACCESS_TTL", "")

	t.Setenv("QARZHY_BCRYPT_COST", "99")
	_, err = Load()
	require.Error(t, err, "out-of-range bcrypt cost must be rejected")
}
