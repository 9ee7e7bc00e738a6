package config

import (
	"fmt"
	"os"
	"strconv"
)

// Store driver names accepted in the STORE environment variable.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	Store          string
	DatabaseURL    string
	SQLitePath     string
	LogLevel       string
	LogJSON        bool
	Port           string
	TelegramToken  string
	AnnounceChatID int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Store:      getEnvOrDefault("STORE", StoreSQLite),
		SQLitePath: getEnvOrDefault("SQLITE_PATH", "wishpool.db"),
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
		LogJSON:    os.Getenv("LOG_JSON") == "true",
		Port:       getEnvOrDefault("PORT", "8080"),
	}

	switch cfg.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.DatabaseURL = os.Getenv("DATABASE_URL"); cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required when STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("STORE must be one of %s, %s, %s", StoreMemory, StoreSQLite, StorePostgres)
	}

	// The Telegram surface is optional; without a token the bot and the
	// announcer stay disabled.
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if raw := os.Getenv("ANNOUNCE_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ANNOUNCE_CHAT_ID must be an integer: %w", err)
		}
		cfg.AnnounceChatID = id
	}

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
