package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DOPPLER_PROJECT", "")
	t.Setenv("COMMISSION_MANAGER_RATE", "")
	t.Setenv("SETTLEMENT_CRON", "")

	cfg := LoadConfig()

	assert.True(t, cfg.Commission.ManagerRate.Equal(decimal.RequireFromString("0.08")))
	assert.True(t, cfg.Commission.AgentRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, "0 3 1 * *", cfg.Settlement.Cron)
	assert.NotEmpty(t, cfg.JWT.Secret)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("COMMISSION_AGENT_RATE", "0.07")
	t.Setenv("DATABASE_RETRY_BASE_DELAY", "250ms")
	t.Setenv("DATABASE_MAX_CONNS", "not-a-number")
	t.Setenv("RATE_LIMIT_IP_PER_SECOND", "2.5")
	t.Setenv("ENVIRONMENT", "production")

	cfg := LoadConfig()

	assert.True(t, cfg.Commission.AgentRate.Equal(decimal.RequireFromString("0.07")))
	assert.Equal(t, 250*time.Millisecond, cfg.Database.RetryBaseDelay)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 2.5, cfg.RateLimit.IPPerSecond)
	assert.True(t, cfg.IsProduction())
}
