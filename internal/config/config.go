// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dosewise/dosewise/internal/logger"
)

// Config holds all configuration for the dosewise daemon
type Config struct {
	// RedisURL is the connection URL for Redis
	RedisURL string
	// DispatchInterval is how often the dispatcher checks for due triggers
	DispatchInterval time.Duration
	// ReconcileInterval is how often the reconciliation pass re-runs
	// (the daemon analog of the app-foreground hook)
	ReconcileInterval time.Duration
	// PermissionGranted pre-grants notification permission at startup.
	// In the app this comes from the platform permission prompt.
	PermissionGranted bool
	// SpeechEnabled enables spoken announcements alongside notifications
	SpeechEnabled bool
	// SpeechDelay is the pause between the visual notification and the
	// spoken announcement, so audio does not race the banner animation
	SpeechDelay time.Duration
	// Logging configuration
	Logging *logger.Config
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		DispatchInterval:  getEnvAsDuration("DISPATCH_INTERVAL", 15*time.Second),
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
		PermissionGranted: getEnvAsBool("NOTIFICATION_PERMISSION", true),
		SpeechEnabled:     getEnvAsBool("SPEECH_ENABLED", true),
		SpeechDelay:       getEnvAsDuration("SPEECH_DELAY", 2*time.Second),
		Logging:           loadLoggingConfig(),
	}

	// Validate required fields
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL cannot be empty")
	}
	if cfg.DispatchInterval <= 0 {
		return nil, fmt.Errorf("DISPATCH_INTERVAL must be positive")
	}
	if cfg.DispatchInterval > time.Minute {
		// A tick longer than a minute can step over a trigger's due minute
		return nil, fmt.Errorf("DISPATCH_INTERVAL must not exceed one minute")
	}
	if cfg.ReconcileInterval <= 0 {
		return nil, fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	if cfg.SpeechDelay < 0 {
		return nil, fmt.Errorf("SPEECH_DELAY cannot be negative")
	}

	// Validate logging config
	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(format)
	}

	// Tier 1: Console
	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", 65536)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", 100*time.Millisecond)

	// Tier 2: File
	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", "/var/log/dosewise/dosewise.log")
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 50)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", 10000)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", 100)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", 100*time.Millisecond)

	return cfg
}
