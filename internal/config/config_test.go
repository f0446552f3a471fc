package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mall-order", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Order.PendingTTL)
	assert.Equal(t, 30*time.Minute, cfg.Order.ExpiryWindow)
	assert.Equal(t, "10.00", cfg.Order.FreightFee)
	assert.Equal(t, "99.00", cfg.Order.FreightFreeOver)
	assert.Equal(t, 10, cfg.Worker.Count)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, "orders:materialize", cfg.Worker.QueueName)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MALL_ORDER_WORKER_COUNT", "4")
	t.Setenv("MALL_ORDER_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MALL_ORDER_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[http]
addr = ":9090"

[order]
pendingttl = "5m"

[worker]
count = 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Order.PendingTTL)
	assert.Equal(t, 2, cfg.Worker.Count)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("MALL_ORDER_WORKER_COUNT", "0")

	_, err := Load("")
	assert.ErrorContains(t, err, "worker.count")
}
