package logger

import (
	"fmt"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// LogSource distinguishes internal system logs from reminder-delivery logs
type LogSource string

const (
	LogSourceInternal LogSource = "dosewise_internal" // Internal system logs
	LogSourceReminder LogSource = "dosewise_reminder" // Reminder delivery logs
)

// Component identifies which part of the system generated the log
type Component string

const (
	ComponentService    Component = "service"
	ComponentLedger     Component = "ledger"
	ComponentStorage    Component = "storage"
	ComponentDispatch   Component = "dispatch"
	ComponentDelivery   Component = "delivery"
	ComponentReconciler Component = "reconciler"
	ComponentLogger     Component = "logger"
)

// Config holds the complete logging configuration for both tiers
type Config struct {
	// Global settings
	Level  LogLevel  `json:"level"`
	Format LogFormat `json:"format"`

	// Tier 1: Console (always enabled)
	Console ConsoleConfig `json:"console"`

	// Tier 2: File (optional)
	File FileConfig `json:"file"`
}

// ConsoleConfig configures console/terminal logging (Tier 1)
type ConsoleConfig struct {
	Enabled       bool          `json:"enabled"`
	Color         bool          `json:"color"`          // Colored output (text mode only)
	BufferSize    int           `json:"buffer_size"`    // Async buffer size in bytes
	FlushInterval time.Duration `json:"flush_interval"` // Flush interval
}

// FileConfig configures rotating file logging (Tier 2)
type FileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`  // Max size before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of old log files
	MaxAgeDays int    `json:"max_age_days"` // Max age in days
	Compress   bool   `json:"compress"`     // Compress rotated files

	BufferSize    int           `json:"buffer_size"`    // Channel buffer size
	BatchSize     int           `json:"batch_size"`     // Batch write size
	BatchInterval time.Duration `json:"batch_interval"` // Batch flush interval
}

// DefaultConfig returns a default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Console: ConsoleConfig{
			Enabled:       true,
			Color:         true,
			BufferSize:    65536,
			FlushInterval: 100 * time.Millisecond,
		},
		File: FileConfig{
			Enabled:       false,
			Path:          "/var/log/dosewise/dosewise.log",
			MaxSizeMB:     50,
			MaxBackups:    5,
			MaxAgeDays:    30,
			Compress:      true,
			BufferSize:    10000,
			BatchSize:     100,
			BatchInterval: 100 * time.Millisecond,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	switch c.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	if c.File.Enabled {
		if c.File.Path == "" {
			return fmt.Errorf("file logging enabled but path is empty")
		}
		if c.File.MaxSizeMB <= 0 {
			return fmt.Errorf("file max size must be > 0")
		}
	}

	return nil
}
