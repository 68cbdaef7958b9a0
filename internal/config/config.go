package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	LogLevel      string
	StorageDriver string // "file" or "postgres"
	DataFile      string
	DBConn        string

	AdminUsername string
	AdminPassword string
	JWTSecret     string

	DeepSeekURL    string
	DeepSeekAPIKey string
	DeepSeekModel  string
	OracleTimeout  time.Duration

	SpreadSize   int
	ShuffleDelay time.Duration
	SettleDelay  time.Duration
}

// NewConfig loads configuration from the environment, reading a .env
// file first when one is present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "3001"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		StorageDriver: getEnv("STORAGE_DRIVER", "file"),
		DataFile:      getEnv("DATA_FILE", "data.json"),
		DBConn:        getEnv("DB_CONN", ""),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),

		DeepSeekURL:    getEnv("DEEPSEEK_URL", "https://api.deepseek.com/chat/completions"),
		DeepSeekAPIKey: getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekModel:  getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		OracleTimeout:  60 * time.Second,

		SpreadSize:   6,
		ShuffleDelay: 3 * time.Second,
		SettleDelay:  1500 * time.Millisecond,
	}

	if v := os.Getenv("ORACLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ORACLE_TIMEOUT %q: %w", v, err)
		}
		cfg.OracleTimeout = d
	}

	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil, fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StorageDriver == "postgres" && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required when STORAGE_DRIVER=postgres")
	}
	if cfg.DeepSeekAPIKey == "" {
		return nil, fmt.Errorf("DEEPSEEK_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
