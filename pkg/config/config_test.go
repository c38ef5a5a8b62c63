package config

import (
	"database/sql"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, sql.LevelSerializable, cfg.Database.TxIsolation)
	assert.Equal(t, "0 1 1 * *", cfg.Billing.Schedule)
	assert.Equal(t, 4, cfg.Billing.Workers)
	assert.Equal(t, 2*time.Second, cfg.Billing.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.CacheTTL)
	assert.False(t, cfg.Redis.Enabled)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("DB_TX_ISOLATION", "repeatable_read")
	v.Set("BILLING_WORKERS", 0)
	v.Set("LEDGER_CACHE_TTL", "not-a-duration")

	cfg := fromViper(v)
	assert.Equal(t, sql.LevelRepeatableRead, cfg.Database.TxIsolation)
	assert.Equal(t, 1, cfg.Billing.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.CacheTTL)
}
