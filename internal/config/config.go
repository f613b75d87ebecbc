package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	OCR      OCRConfig
	App      AppConfig
}

// Store backends
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

type DatabaseConfig struct {
	Dialect    string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type ServerConfig struct {
	Port string
}

type OCRConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type AppConfig struct {
	LogLevel     string
	BatchSize    int
	StoreBackend string
	NodeID       int64
	PhoneRegion  string
	ImportDir    string
}

// Load reads the environment, after merging an optional .env file
func Load() (*Config, error) {
	_ = godotenv.Load()

	batchSize, err := strconv.Atoi(getEnv("BATCH_SIZE", "500"))
	if err != nil || batchSize <= 0 {
		batchSize = 500
	}
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	nodeID, err := strconv.ParseInt(getEnv("NODE_ID", "1"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NODE_ID: %w", err)
	}
	ocrTimeout, err := time.ParseDuration(getEnv("OCR_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Dialect:    getEnv("DB_DIALECT", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "recon_dashboard"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "recon.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			Prefix:   getEnv("REDIS_PREFIX", "recon"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		OCR: OCRConfig{
			Endpoint: getEnv("OCR_ENDPOINT", ""),
			APIKey:   getEnv("OCR_API_KEY", ""),
			Timeout:  ocrTimeout,
		},
		App: AppConfig{
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			BatchSize:    batchSize,
			StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			NodeID:       nodeID,
			PhoneRegion:  getEnv("PHONE_REGION", "VN"),
			ImportDir:    getEnv("IMPORT_DIR", ""),
		},
	}

	switch cfg.App.StoreBackend {
	case BackendMemory, BackendSQL, BackendRedis:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.App.StoreBackend)
	}
	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// DSN returns the connection string for the configured dialect
func (c *DatabaseConfig) DSN() string {
	if c.Dialect == "sqlite" {
		return c.SQLitePath
	}
	return c.ConnectionString()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
