package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MongoDB     MongoDBConfig     `mapstructure:"mongodb"`
	Etcd        EtcdConfig        `mapstructure:"etcd"`
	Log         LogConfig         `mapstructure:"log"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Fulfillment FulfillmentConfig `mapstructure:"fulfillment"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres, mysql, sqlite
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	ElectionKey string        `mapstructure:"election_key"`
	SessionTTL  int           `mapstructure:"session_ttl"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// FulfillmentConfig tunes the order engine and its background workers.
type FulfillmentConfig struct {
	DefaultShippingFee  string        `mapstructure:"default_shipping_fee"`
	RetentionDays       int           `mapstructure:"retention_days"`
	SweepHour           int           `mapstructure:"sweep_hour"`
	OutboxBatchSize     int           `mapstructure:"outbox_batch_size"`
	OutboxPollInterval  time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxWorkers       int           `mapstructure:"outbox_workers"`
	OutboxRatePerSecond float64       `mapstructure:"outbox_rate_per_second"`
	OutboxMaxAttempts   int           `mapstructure:"outbox_max_attempts"`
	OutboxClaimTimeout  time.Duration `mapstructure:"outbox_claim_timeout"` // processing rows older than this are claimed again
	OrderCacheTTL       time.Duration `mapstructure:"order_cache_ttl"`
}

// Load reads CONFIG_PATH (default config/config.yaml) and FULFILLMENT_* env overrides.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	return LoadFrom(path)
}

func LoadFrom(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FULFILLMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "fulfillment")
	v.SetDefault("server.env", "development")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "shop")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("mongodb.database", "shop")
	v.SetDefault("mongodb.collection", "order_audit")

	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.election_key", "/fulfillment/sweeper")
	v.SetDefault("etcd.session_ttl", 15)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("fulfillment.default_shipping_fee", "30")
	v.SetDefault("fulfillment.retention_days", 10)
	v.SetDefault("fulfillment.sweep_hour", 2)
	v.SetDefault("fulfillment.outbox_batch_size", 128)
	v.SetDefault("fulfillment.outbox_poll_interval", 200*time.Millisecond)
	v.SetDefault("fulfillment.outbox_workers", 2)
	v.SetDefault("fulfillment.outbox_rate_per_second", 200.0)
	v.SetDefault("fulfillment.outbox_max_attempts", 5)
	v.SetDefault("fulfillment.outbox_claim_timeout", time.Minute)
	v.SetDefault("fulfillment.order_cache_ttl", 10*time.Minute)
}

// PostgresDSN builds a DSN when database.dsn is empty.
func (c *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

func (c *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
