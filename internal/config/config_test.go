package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/orderflow/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "orders", cfg.QueueName)
	assert.Equal(t, 5, cfg.QueueMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.QueueBackoffBase)
	assert.Equal(t, 500, cfg.QueueKeepCompleted)
	assert.Equal(t, 10, cfg.QueueKeepFailed)
	assert.Equal(t, 30*time.Second, cfg.QueueStallTimeout)
	assert.Equal(t, 1, cfg.VIPPriority)
	assert.Equal(t, 10, cfg.DefaultPriority)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.EventsEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("WORKER_CONCURRENCY", "7")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "3")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, 7, cfg.Concurrency())
	assert.Equal(t, 3, cfg.QueueMaxAttempts)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.EventsEnabled())
}

func TestValidate_ProdRequiresSecrets(t *testing.T) {
	assert.NoError(t, config.Config{AppEnv: "dev"}.Validate())

	err := config.Config{AppEnv: "prod", DBURL: "postgres://db/x"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	err = config.Config{AppEnv: "prod", JWTSecret: "s3cret"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_URL")

	assert.NoError(t, config.Config{AppEnv: "prod", DBURL: "postgres://db/x", JWTSecret: "s3cret"}.Validate())
}

func TestConcurrency_DefaultsToCPUs(t *testing.T) {
	cfg := config.Config{WorkerConcurrency: 0}
	assert.Greater(t, cfg.Concurrency(), 0)
}
