package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Payment.HTTPTimeout)
	assert.Equal(t, "hs256", cfg.Auth.Mode)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Lock.Enabled)
	assert.Equal(t, "vnd", cfg.Payment.Stripe.Currency)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PAYMENT_HTTP_TIMEOUT", "3s")
	t.Setenv("VEHICLE_LOCK_TTL", "not-a-duration")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("AUTH_MODE", "OIDC")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Payment.HTTPTimeout)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL, "unparseable values fall back")
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.Equal(t, "oidc", cfg.Auth.Mode)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Username: "u", Password: "p", Host: "db", Port: "5432", Database: "rental", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/rental?sslmode=disable", d.DSN())
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.Payment.VNPay.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	for _, name := range []string{"DB_PASSWORD", "CONTRACT_SECRET", "JWT_SECRET", "VNPAY_TMN_CODE", "VNPAY_HASH_SECRET"} {
		assert.Contains(t, err.Error(), name)
	}

	cfg.Database.Password = "p"
	cfg.Contract.Secret = "c"
	cfg.Auth.JWTSecret = "j"
	cfg.Payment.VNPay.TmnCode = "T"
	cfg.Payment.VNPay.HashSecret = "H"
	assert.NoError(t, cfg.Validate())

	cfg.Auth.Mode = "basic"
	assert.Error(t, cfg.Validate())
}
