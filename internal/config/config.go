// Package config loads runtime configuration from the environment, the same
// getEnv(key, default)-with-os.Getenv shape used by every cmd/*/main.go in
// the reference codebase this module's skeleton was adapted from. There is
// no config file and no struct-tag binding library.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable knob in the ticket broker, per
// SPEC_FULL.md §6.
type Config struct {
	RedisURL string
	NATSURL  string

	WebhookURL string

	DedupSimThreshold  float64
	DedupMinCount      int
	DedupWindowSeconds int

	TransformerLatencyCapMS int
	CircuitCooldownSeconds  int
	CircuitHalfOpenProbes   int

	RoutingLoadPenaltyFactor float64

	WorkerConcurrency int
	DedupLockEnabled  bool
	EtcdEndpoints     []string

	AuditDatabaseURL string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	MetricsExportInterval time.Duration
	RateLimitPerSecond    int

	HTTPAddr string
}

// Load reads Config from the environment, falling back to the documented
// defaults for anything unset.
func Load() Config {
	return Config{
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NATSURL:  getEnv("NATS_URL", "nats://localhost:4222"),

		WebhookURL: getEnv("WEBHOOK_URL", ""),

		DedupSimThreshold:  getEnvFloat("DEDUP_SIM_THRESHOLD", 0.9),
		DedupMinCount:      getEnvInt("DEDUP_MIN_COUNT", 10),
		DedupWindowSeconds: getEnvInt("DEDUP_WINDOW_SECONDS", 300),

		TransformerLatencyCapMS: getEnvInt("TRANSFORMER_LATENCY_MS", 500),
		CircuitCooldownSeconds:  getEnvInt("CIRCUIT_COOLDOWN_SECONDS", 60),
		CircuitHalfOpenProbes:   getEnvInt("CIRCUIT_HALF_OPEN_PROBES", 3),

		RoutingLoadPenaltyFactor: getEnvFloat("ROUTING_LOAD_PENALTY_FACTOR", 0.1),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		DedupLockEnabled:  getEnvBool("DEDUP_LOCK_ENABLED", false),
		EtcdEndpoints:     getEnvList("ETCD_ENDPOINTS", nil),

		AuditDatabaseURL: getEnv("AUDIT_DATABASE_URL", ""),

		InfluxURL:    getEnv("INFLUXDB_URL", ""),
		InfluxToken:  getEnv("INFLUXDB_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUXDB_ORG", ""),
		InfluxBucket: getEnv("INFLUXDB_BUCKET", ""),

		MetricsExportInterval: time.Duration(getEnvInt("METRICS_EXPORT_INTERVAL_SECONDS", 15)) * time.Second,
		RateLimitPerSecond:    getEnvInt("RATE_LIMIT_PER_SECOND", 50),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
