package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string
	Env             string
	AllowedOrigins  []string
	RateLimitRPS    int
	RateLimitBurst  int
	ShutdownTimeout time.Duration

	// Store selection
	StoreBackend string
	SQLitePath   string
	DatabaseURL  string

	// Redis configuration
	RedisURL       string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Change events (optional)
	AMQPURL      string
	AMQPExchange string

	// Backups
	BackupDir       string
	BackupGCSBucket string
	BackupGCSPrefix string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitRPS:    getEnvAsInt("RATE_LIMIT_RPS", 100),
		RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		StoreBackend: getEnv("STORE_BACKEND", BackendSQLite),
		SQLitePath:   getEnv("SQLITE_PATH", "./data/pocketledger.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "pocketledger:"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pocketledger.events"),

		BackupDir:       getEnv("BACKUP_DIR", ""),
		BackupGCSBucket: getEnv("BACKUP_GCS_BUCKET", ""),
		BackupGCSPrefix: getEnv("BACKUP_GCS_PREFIX", "backups"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures the configuration is usable and reports every problem at once
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid PORT %q: must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid PORT %d: must be between 1 and 65535", port))
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH is required for the sqlite backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid STORE_BACKEND %q: must be one of %v",
			c.StoreBackend, []string{BackendMemory, BackendSQLite, BackendRedis, BackendPostgres}))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP_URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP_URL scheme %q: must be amqp or amqps", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP_EXCHANGE cannot be empty when AMQP_URL is set")
		}
	}

	if c.BackupDir != "" && c.BackupGCSBucket != "" {
		problems = append(problems, "BACKUP_DIR and BACKUP_GCS_BUCKET are mutually exclusive")
	}

	if c.RateLimitRPS < 1 {
		problems = append(problems, fmt.Sprintf("invalid RATE_LIMIT_RPS %d: must be at least 1", c.RateLimitRPS))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
