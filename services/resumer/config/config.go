package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the resumer service.
type Config struct {
	LogLevel     string
	LogFormat    string
	KafkaBrokers string
	RedisAddr    string
	PostgresDSN  string
	// Schedule is a robfig/cron spec, e.g. "@every 30s" or "*/1 * * * *".
	Schedule     string
	StaleAfter   time.Duration
	Batch        int
	LeaderTTL    time.Duration
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		RedisAddr:    v.GetString("redis_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		Schedule:     v.GetString("schedule"),
		StaleAfter:   v.GetDuration("stale_after"),
		Batch:        v.GetInt("batch"),
		LeaderTTL:    v.GetDuration("leader_ttl"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("postgres_dsn is required")
	}
	if cfg.StaleAfter <= 0 {
		return Config{}, fmt.Errorf("stale_after must be positive, got %s", cfg.StaleAfter)
	}
	return cfg, nil
}
