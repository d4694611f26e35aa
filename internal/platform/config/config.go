package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr                string
	DatabaseURL         string
	Environment         string
	LogLevel            string
	DataEncryptionKey   string
	ExportStorageDir    string
	ExportWorkers       int
	MigrationsDir       string
	RunMigrations       bool
	MaxBodyBytes        int64
	AccrualInterval     time.Duration
	ProgressionInterval time.Duration
	MetricsEnabled      bool
	CORSAllowedOrigins  []string
	Timezone            string
}

func Load() Config {
	return Config{
		Addr:                getEnv("APP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		Environment:         getEnv("APP_ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DataEncryptionKey:   getEnv("DATA_ENCRYPTION_KEY", ""),
		ExportStorageDir:    getEnv("EXPORT_STORAGE_DIR", "storage/exports"),
		ExportWorkers:       getEnvInt("EXPORT_WORKERS", 8),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "migrations"),
		RunMigrations:       getEnvBool("RUN_MIGRATIONS", true),
		MaxBodyBytes:        int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		AccrualInterval:     getEnvDuration("ACCRUAL_INTERVAL", time.Hour),
		ProgressionInterval: getEnvDuration("PROGRESSION_INTERVAL", 24*time.Hour),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", nil),
		Timezone:            getEnv("TIMEZONE", "UTC"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" && strings.TrimSpace(c.DataEncryptionKey) == "" {
		return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for export files at rest")
	}
	if c.ExportWorkers <= 0 {
		return fmt.Errorf("EXPORT_WORKERS must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if strings.TrimSpace(c.ExportStorageDir) == "" {
		return fmt.Errorf("EXPORT_STORAGE_DIR is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	return nil
}

// Location is the zone work dates and periods are interpreted in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
