package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all environment configuration
type Config struct {
	// Server
	Port string

	// Persistence; empty disables the sqlite store
	DBPath string

	// Number of recent summaries kept in memory by the server
	CacheSize int

	// Logging
	LogLevel string

	// Working-directory sentinel
	SentinelName   string
	SentinelSuffix string
}

// Load reads the environment, after loading .env if it exists
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SentinelName:   getEnv("SENTINEL_NAME", "buildwatch"),
		SentinelSuffix: getEnv("SENTINEL_SUFFIX", "/buildwatch"),
	}

	cacheSize, err := strconv.Atoi(getEnv("CACHE_SIZE", "128"))
	if err != nil {
		return nil, fmt.Errorf("CACHE_SIZE: %w", err)
	}
	if cacheSize <= 0 {
		return nil, fmt.Errorf("CACHE_SIZE must be positive, got %d", cacheSize)
	}
	config.CacheSize = cacheSize

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
