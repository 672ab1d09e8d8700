package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"POSTGRES_DSN", "REDIS_ADDR", "KAFKA_BROKERS", "WEBHOOK_RATE_LIMIT", "LYGOS_TIMEOUT", "SMTP_USER", "GMAIL_USER"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 20, cfg.WebhookRateLimit)
	assert.Equal(t, time.Minute, cfg.WebhookRateWindow)
	assert.Equal(t, 20*time.Second, cfg.Lygos.Timeout)
	assert.Equal(t, "/v1/transactions", cfg.Lygos.CreatePath)
	assert.Equal(t, "+242", cfg.SMS.CountryCode)
	assert.Equal(t, 5, cfg.LowStockThreshold)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("WEBHOOK_RATE_WINDOW", "30")
	t.Setenv("LYGOS_TIMEOUT", "5s")
	t.Setenv("LYGOS_AMOUNT_MINOR_UNITS", "true")
	t.Setenv("SMTP_USER", "")
	t.Setenv("GMAIL_USER", "shop@gmail.com")
	t.Setenv("STAFF_ALERT_EMAILS", "a@x.cg,b@x.cg")
	t.Setenv("LOW_STOCK_THRESHOLD", "not-a-number")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.WebhookRateWindow)
	assert.Equal(t, 5*time.Second, cfg.Lygos.Timeout)
	assert.True(t, cfg.Lygos.MinorUnits)
	assert.Equal(t, "shop@gmail.com", cfg.SMTP.Username)
	assert.Equal(t, "shop@gmail.com", cfg.SMTP.From)
	assert.Equal(t, []string{"a@x.cg", "b@x.cg"}, cfg.StaffAlertEmails)
	assert.Equal(t, 5, cfg.LowStockThreshold)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.UTC, Config{Timezone: "Nowhere/Atlantis"}.Location())
	assert.Equal(t, "UTC", Config{Timezone: "UTC"}.Location().String())
}
