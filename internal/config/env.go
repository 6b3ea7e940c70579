package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds process-level settings read from the environment.
type Env struct {
	Port          string
	ConfigPath    string
	DatabaseURL   string
	SQLitePath    string
	RedisURL      string
	StatusFile    string
	EncryptionKey string
}

// Environment variable names consulted for credential recovery.
const (
	EnvAPIKey    = "BINANCE_API_KEY"
	EnvAPISecret = "BINANCE_API_SECRET"
)

// LoadEnv reads environment variables, loading a .env file first when one
// is present.
func LoadEnv() Env {
	// Ignore error so the service still starts when .env is missing.
	_ = godotenv.Load()

	return Env{
		Port:          getEnv("PORT", "5001"),
		ConfigPath:    getEnv("PAPER_CONFIG", "./config/trading_config.json"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    os.Getenv("SQLITE_PATH"),
		RedisURL:      os.Getenv("REDIS_URL"),
		StatusFile:    getEnv("STATUS_FILE", "./data/paper_trading_status.json"),
		EncryptionKey: os.Getenv("PAPER_ENCRYPTION_KEY"),
	}
}

// EnvCredentials returns the API key pair from the environment, if both
// halves are set.
func EnvCredentials() (key, secret string, ok bool) {
	key = strings.TrimSpace(os.Getenv(EnvAPIKey))
	secret = strings.TrimSpace(os.Getenv(EnvAPISecret))
	return key, secret, key != "" && secret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
