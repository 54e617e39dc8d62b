package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Offline queue storage (SQLite file; empty means in-memory)
	LocalStorePath string

	// Mapbox reverse-geocoding configuration
	MapboxAPIURL      string
	MapboxAccessToken string

	// Sesh lifecycle tuning
	RateLimitWindow time.Duration // min gap between sesh starts per profile
	ReminderDelay   time.Duration // "are you ok?" reminder after sesh start
	StaleSeshAge    time.Duration // open seshes older than this get reaped

	// Background sync sweep interval
	SyncInterval time.Duration

	// History page size cap
	HistoryPageSize int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		LocalStorePath: getEnv("LOCAL_STORE_PATH", "seshtrack.db"),

		MapboxAPIURL:      getEnv("MAPBOX_API_URL", "https://api.mapbox.com/search/geocode/v6"),
		MapboxAccessToken: getEnv("MAPBOX_ACCESS_TOKEN", ""),

		RateLimitWindow: getDurationEnv("RATE_LIMIT_WINDOW", 5*time.Minute),
		ReminderDelay:   getDurationEnv("REMINDER_DELAY", 10*time.Minute),
		StaleSeshAge:    getDurationEnv("STALE_SESH_AGE", 24*time.Hour),

		SyncInterval: getDurationEnv("SYNC_INTERVAL", 1*time.Minute),

		HistoryPageSize: getIntEnv("HISTORY_PAGE_SIZE", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
