package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/settlement")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYSTACK_SECRET", "sk_test")
	t.Setenv("MIN_TRANSACTION_AMOUNT", "10000")
	t.Setenv("PORT", "8080")
	t.Setenv("HOST", "http://localhost:8080")
	t.Setenv("ENV", "test")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg := LoadConfig()

	assert.Equal(t, ModeMainBalance, cfg.Settlement.Mode)
	assert.True(t, cfg.Settlement.PlatformFeePercentage.IsZero())
	assert.Equal(t, "100", cfg.Settlement.SettlementPercentage.String())
	assert.Equal(t, int64(0), cfg.Settlement.PlatformFeeMax)
	assert.True(t, cfg.Settlement.CancelOnFailure)
	assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Webhook.RetryBaseDelay)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "redis", cfg.Notify.Backend)
}

func TestLoadConfigSettlementOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SETTLEMENT_MODE", "subaccount")
	t.Setenv("PLATFORM_FEE_PERCENTAGE", "1.5")
	t.Setenv("PLATFORM_FEE_MAX", "200000")
	t.Setenv("SETTLEMENT_PERCENTAGE", "90")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg := LoadConfig()

	assert.Equal(t, ModeSubaccount, cfg.Settlement.Mode)
	assert.Equal(t, "1.5", cfg.Settlement.PlatformFeePercentage.String())
	assert.Equal(t, int64(200000), cfg.Settlement.PlatformFeeMax)
	assert.Equal(t, "90", cfg.Settlement.SettlementPercentage.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown mode", "SETTLEMENT_MODE", "SPLIT"},
		{"fee above 100", "PLATFORM_FEE_PERCENTAGE", "101"},
		{"negative settlement percentage", "SETTLEMENT_PERCENTAGE", "-1"},
		{"negative fee cap", "PLATFORM_FEE_MAX", "-5"},
		{"bad duration", "WEBHOOK_RETRY_BASE_DELAY", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			assert.Panics(t, func() { LoadConfig() })
		})
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	assert.PanicsWithValue(t, "DATABASE_URL is required", func() { LoadConfig() })
}
