package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the simulator.
type Config struct {
	Port string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Synthetic feed
	Symbols      []string
	TickInterval time.Duration

	// Persistence
	FlushInterval time.Duration

	// Session eviction
	SessionTTL time.Duration

	// Risk presets
	RiskPresetsPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		DBPath:          getEnv("DB_PATH", "./data/papertrader.db"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT")),
		TickInterval:    time.Duration(getEnvInt("TICK_INTERVAL_MS", 1000)) * time.Millisecond,
		FlushInterval:   time.Duration(getEnvInt("FLUSH_INTERVAL_MS", 500)) * time.Millisecond,
		SessionTTL:      time.Duration(getEnvInt("SESSION_TTL_MINUTES", 120)) * time.Minute,
		RiskPresetsPath: getEnv("RISK_PRESETS_PATH", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
