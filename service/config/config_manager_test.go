package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, env map[string]string, paths ...string) *ConfigManager {
	t.Helper()
	if len(paths) == 0 {
		paths = []string{filepath.Join(t.TempDir(), "missing.yaml")}
	}
	m := NewConfigManager(paths...)
	m.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return m
}

func TestLoadConfig_Defaults(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.LoadConfig())

	cfg := m.GetConfig()
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, 24, cfg.Detectors.Structuring.WindowHours)
	assert.Equal(t, []string{"WIRE", "ACH"}, cfg.Detectors.RapidTransfers.TransferTypes)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.LockTTL)
}

func TestLoadConfig_YAMLKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  driver: sqlite
  dsn: "file::memory:"
scan:
  workers: 8
detectors:
  structuring:
    min_count: 4
scheduler:
  lock_ttl: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	m := newTestManager(t, nil, path)
	require.NoError(t, m.LoadConfig())

	cfg := m.GetConfig()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.Equal(t, 500, cfg.Scan.InsertBatchSize)
	assert.Equal(t, 4, cfg.Detectors.Structuring.MinCount)
	assert.Equal(t, 9000.0, cfg.Detectors.Structuring.MinAmount)
	assert.True(t, cfg.Detectors.RoundAmount.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.LockTTL)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	m := newTestManager(t, map[string]string{
		"LISTEN_PORT":                "8081",
		"DATABASE_URL":               "postgres://u:p@db:5432/aml",
		"REDIS_HOST":                 "redis",
		"POLICYGUARD_REDIS_ENABLED":  "true",
		"POLICYGUARD_KAFKA_ENABLED":  "1",
		"POLICYGUARD_KAFKA_BROKERS":  "k1:9092, k2:9092",
		"POLICYGUARD_SCAN_WORKERS":   "16",
		"POLICYGUARD_LOG_LEVEL":      "debug",
	})
	require.NoError(t, m.LoadConfig())

	cfg := m.GetConfig()
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "postgres://u:p@db:5432/aml", cfg.Database.PostgresDSN())
	assert.Equal(t, "redis:6379", cfg.Redis.RedisAddr())
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 16, cfg.Scan.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	m := newTestManager(t, map[string]string{"POLICYGUARD_SCAN_WORKERS": "many"})
	err := m.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLICYGUARD_SCAN_WORKERS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ApplicationConfig)
	}{
		{"端口越界", func(c *ApplicationConfig) { c.Server.Port = 70000 }},
		{"未知驱动", func(c *ApplicationConfig) { c.Database.Driver = "mysql" }},
		{"sqlite 缺少 dsn", func(c *ApplicationConfig) { c.Database.Driver = "sqlite" }},
		{"并发为 0", func(c *ApplicationConfig) { c.Scan.Workers = 0 }},
		{"kafka 无 broker", func(c *ApplicationConfig) { c.Kafka.Enabled = true }},
		{"拆分区间倒置", func(c *ApplicationConfig) { c.Detectors.Structuring.MinAmount = 20000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}

	assert.NoError(t, Validate(DefaultConfig()))
}
