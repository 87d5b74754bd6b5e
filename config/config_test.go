package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "30", cfg.Fulfillment.DefaultShippingFee)
	assert.Equal(t, 10, cfg.Fulfillment.RetentionDays)
	assert.Equal(t, 2, cfg.Fulfillment.SweepHour)
	assert.Equal(t, 200*time.Millisecond, cfg.Fulfillment.OutboxPollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Fulfillment.OrderCacheTTL)
	assert.Equal(t, "/fulfillment/sweeper", cfg.Etcd.ElectionKey)
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  dsn: "file::memory:"
fulfillment:
  retention_days: 7
  outbox_poll_interval: 1s
`), 0o600))
	t.Setenv("FULFILLMENT_FULFILLMENT_SWEEP_HOUR", "4")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
	assert.Equal(t, 7, cfg.Fulfillment.RetentionDays)
	assert.Equal(t, time.Second, cfg.Fulfillment.OutboxPollInterval)
	assert.Equal(t, 4, cfg.Fulfillment.SweepHour)
}

func TestLoadFrom_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0o600))
	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := &DatabaseConfig{Host: "db", Port: 5432, Username: "u", Password: "p", Database: "shop"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=shop sslmode=disable TimeZone=UTC", c.PostgresDSN())
	c.Port = 3306
	assert.Equal(t, "u:p@tcp(db:3306)/shop?charset=utf8mb4&parseTime=True&loc=UTC", c.MySQLDSN())
}
