package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the simworker service.
type Config struct {
	LogLevel     string
	KafkaBrokers string
	RedisAddr    string
	PostgresDSN  string
	GroupID      string
	ResultTTL    time.Duration
	SeedFallback bool
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		RedisAddr:    v.GetString("redis_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		GroupID:      v.GetString("group_id"),
		ResultTTL:    v.GetDuration("result_ttl"),
		SeedFallback: v.GetBool("seed_fallback"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
