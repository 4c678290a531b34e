package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds everything the server, the CLI and the importer read from the
// environment. Data store credentials live only here.
type Config struct {
	// Application
	AppPort  string
	AppEnv   string
	LogLevel string

	// Database
	DBDriver string
	DBDSN    string

	// Import
	ImportBatchSize   int
	ImportBatchDelay  time.Duration
	ImportPreviewRows int
	UploadMaxSize     int64
	MappingRulesFile  string
	ImportSessionTTL  time.Duration
}

// LoadConfig reads .env (if present) and the process environment
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:  getEnv("APP_PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver: getEnv("DB_DRIVER", DriverSQLite),
		DBDSN:    getEnv("DB_DSN", "./data/cleaning.db"),

		ImportBatchSize:   getEnvAsInt("IMPORT_BATCH_SIZE", 50),
		ImportBatchDelay:  getEnvAsDuration("IMPORT_BATCH_DELAY", 50*time.Millisecond),
		ImportPreviewRows: getEnvAsInt("IMPORT_PREVIEW_ROWS", 5),
		UploadMaxSize:     int64(getEnvAsInt("UPLOAD_MAX_SIZE", 10<<20)), // 10MB
		MappingRulesFile:  getEnv("MAPPING_RULES_FILE", ""),
		ImportSessionTTL:  getEnvAsDuration("IMPORT_SESSION_TTL", 30*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot work with
func (c *Config) Validate() error {
	if c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.ImportBatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.ImportBatchSize)
	}
	if c.ImportPreviewRows <= 0 {
		return fmt.Errorf("IMPORT_PREVIEW_ROWS must be positive, got %d", c.ImportPreviewRows)
	}
	if c.ImportSessionTTL <= 0 {
		return fmt.Errorf("IMPORT_SESSION_TTL must be positive, got %s", c.ImportSessionTTL)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
