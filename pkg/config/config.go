// Package config loads router configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all router tuning knobs. Zero-config startup works: every
// field except AdminPassword has a sensible default.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// Loop guard knobs.
	LoopMaxPerMinute   int
	LoopDelayDefaultMs int
	LoopDelayBurstMs   int

	// Delivery engine knobs.
	DeliveryMaxRetries     int
	DeliveryBaseDelay      time.Duration
	DeliveryAttemptTimeout time.Duration

	// AdminPassword enables the admin surface when non-empty.
	AdminPassword string

	// SQLitePath is the audit sink location.
	SQLitePath string
}

// Load reads configuration from environment variables, applying defaults
// for anything unset or unparsable.
func Load() *Config {
	cfg := &Config{
		Port:                   getEnvInt("PORT", 8787),
		LoopMaxPerMinute:       getEnvInt("LOOP_MAX_PER_MINUTE", 6),
		LoopDelayDefaultMs:     getEnvInt("LOOP_DELAY_DEFAULT_MS", 2000),
		DeliveryMaxRetries:     getEnvInt("DELIVERY_MAX_RETRIES", 3),
		DeliveryBaseDelay:      time.Duration(getEnvInt("DELIVERY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		DeliveryAttemptTimeout: time.Duration(getEnvInt("DELIVERY_TIMEOUT_MS", 10000)) * time.Millisecond,
		AdminPassword:          os.Getenv("ADMIN_PASSWORD"),
		SQLitePath:             getEnvOrDefault("SQLITE_PATH", "./data/router-audit.db"),
	}
	// Burst delay defaults to the warn delay when unset.
	cfg.LoopDelayBurstMs = getEnvInt("LOOP_DELAY_BURST_MS", cfg.LoopDelayDefaultMs)
	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("Invalid integer env value, using default",
			"key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}
