package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the api-gateway service.
type Config struct {
	LogLevel     string
	LogFormat    string
	HTTPPort     string
	GRPCPort     string
	MetricsAddr  string
	KafkaBrokers string
	RedisAddr    string
	// PostgresDSN may be empty with the redis store; the agent catalog and
	// execution history are then unavailable.
	PostgresDSN string
	Store       string
	// PlannerURL is the decomposition endpoint. Empty selects the built-in
	// four-stage template.
	PlannerURL     string
	PlannerTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
	MaxBodyBytes   int64
	// CORSOrigins lists the browser origins allowed to call the REST API.
	// "*" allows any origin; empty disables CORS handling.
	CORSOrigins  []string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		HTTPPort:       v.GetString("http_port"),
		GRPCPort:       v.GetString("grpc_port"),
		MetricsAddr:    v.GetString("metrics_addr"),
		KafkaBrokers:   v.GetString("kafka_brokers"),
		RedisAddr:      v.GetString("redis_addr"),
		PostgresDSN:    v.GetString("postgres_dsn"),
		Store:          v.GetString("store"),
		PlannerURL:     v.GetString("planner_url"),
		PlannerTimeout: v.GetDuration("planner_timeout"),
		RateLimit:      v.GetInt("rate_limit"),
		RateWindow:     v.GetDuration("rate_window"),
		MaxBodyBytes:   v.GetInt64("max_body_bytes"),
		CORSOrigins:    splitList(v.GetStringSlice("cors_origins")),
		OTelEndpoint:   v.GetString("otel_endpoint"),
	}
	switch cfg.Store {
	case "", "postgres":
		cfg.Store = "postgres"
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("store postgres needs postgres_dsn")
		}
	case "redis":
	default:
		return Config{}, fmt.Errorf("store: unknown backend %q (want postgres or redis)", cfg.Store)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg, nil
}

// splitList accepts both YAML lists and comma separated strings.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
