package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
)

// Config holds typed configuration for the runner service.
type Config struct {
	LogLevel     string
	LogFormat    string
	KafkaBrokers string
	RedisAddr    string
	PostgresDSN  string
	// Store selects the project state backend: postgres or redis.
	Store        string
	MaxRetries   int
	MaxParallel  int
	TaskTimeout  time.Duration
	LeaseTTL     time.Duration
	AgentRefresh time.Duration
	SMTP         capability.EmailConfig
	Agents       []domain.Agent
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
		Store:        v.GetString("store"),
		MaxRetries:   v.GetInt("max_retries"),
		MaxParallel:  v.GetInt("max_parallel"),
		TaskTimeout:  v.GetDuration("task_timeout"),
		LeaseTTL:     v.GetDuration("lease_ttl"),
		AgentRefresh: v.GetDuration("agent_refresh"),
		SMTP: capability.EmailConfig{
			Host:     v.GetString("smtp_host"),
			Port:     v.GetInt("smtp_port"),
			From:     v.GetString("smtp_from"),
			Username: v.GetString("smtp_username"),
			Password: v.GetString("smtp_password"),
		},
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
	if err := v.UnmarshalKey("agents", &cfg.Agents); err != nil {
		return Config{}, fmt.Errorf("agents: %w", err)
	}
	switch cfg.Store {
	case "", "postgres":
		cfg.Store = "postgres"
	case "redis":
	default:
		return Config{}, fmt.Errorf("store: unknown backend %q (want postgres or redis)", cfg.Store)
	}
	return cfg, nil
}
