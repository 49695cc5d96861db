// Package logger provides the structured, multi-tier logging used across
// dosewise: an always-on console tier and an optional rotating-file tier.
package logger

import (
	"fmt"
	"io"
	"sync"
)

// Logger is the main interface for logging throughout the application
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger

	// WithComponent returns a logger tagged with a component
	WithComponent(component Component) Logger

	// WithSource returns a logger tagged with a log source
	WithSource(source LogSource) Logger

	// Close flushes and closes all log destinations
	Close() error
}

// LogEntry represents a single log entry with all metadata
type LogEntry struct {
	Timestamp    string                 `json:"timestamp"`
	Level        LogLevel               `json:"level"`
	Message      string                 `json:"message"`
	Component    Component              `json:"component,omitempty"`
	Source       LogSource              `json:"log_source,omitempty"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
	MedicationID string                 `json:"medication_id,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// MultiLogger implements Logger by dispatching to both tiers
type MultiLogger struct {
	config     *Config
	console    *ConsoleLogger
	file       *FileLogger
	baseFields map[string]interface{}
	component  Component
	source     LogSource
	mu         sync.RWMutex
}

// NewLogger creates a new multi-tier logger based on configuration
func NewLogger(config *Config) (*MultiLogger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	ml := &MultiLogger{
		config:     config,
		baseFields: make(map[string]interface{}),
	}

	if config.Console.Enabled {
		console, err := NewConsoleLogger(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create console logger: %w", err)
		}
		ml.console = console
	}

	// File logging is optional; a setup failure degrades to console-only
	if config.File.Enabled {
		file, err := NewFileLogger(config)
		if err != nil {
			ml.Warn("Failed to create file logger", "error", err)
		} else {
			ml.file = file
		}
	}

	return ml, nil
}

func (ml *MultiLogger) Debug(msg string, args ...interface{}) { ml.log(LevelDebug, msg, args...) }
func (ml *MultiLogger) Info(msg string, args ...interface{})  { ml.log(LevelInfo, msg, args...) }
func (ml *MultiLogger) Warn(msg string, args ...interface{})  { ml.log(LevelWarn, msg, args...) }
func (ml *MultiLogger) Error(msg string, args ...interface{}) { ml.log(LevelError, msg, args...) }

// WithFields returns a new logger with additional fields
func (ml *MultiLogger) WithFields(fields map[string]interface{}) Logger {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	newFields := make(map[string]interface{}, len(ml.baseFields)+len(fields))
	for k, v := range ml.baseFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &MultiLogger{
		config:     ml.config,
		console:    ml.console,
		file:       ml.file,
		baseFields: newFields,
		component:  ml.component,
		source:     ml.source,
	}
}

// WithComponent returns a new logger tagged with a component
func (ml *MultiLogger) WithComponent(component Component) Logger {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	return &MultiLogger{
		config:     ml.config,
		console:    ml.console,
		file:       ml.file,
		baseFields: ml.baseFields,
		component:  component,
		source:     ml.source,
	}
}

// WithSource returns a new logger tagged with a log source
func (ml *MultiLogger) WithSource(source LogSource) Logger {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	return &MultiLogger{
		config:     ml.config,
		console:    ml.console,
		file:       ml.file,
		baseFields: ml.baseFields,
		component:  ml.component,
		source:     source,
	}
}

// Close flushes and closes all log destinations
func (ml *MultiLogger) Close() error {
	var errs []error

	if ml.console != nil {
		if err := ml.console.Close(); err != nil {
			errs = append(errs, fmt.Errorf("console close: %w", err))
		}
	}

	if ml.file != nil {
		if err := ml.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("file close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing logger: %v", errs)
	}

	return nil
}

// shouldLog checks if a message at the given level should be logged
func (ml *MultiLogger) shouldLog(level LogLevel) bool {
	levels := map[LogLevel]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[ml.config.Level]
}

// log dispatches a log entry to both enabled tiers
func (ml *MultiLogger) log(level LogLevel, msg string, args ...interface{}) {
	if !ml.shouldLog(level) {
		return
	}

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	fields := make(map[string]interface{}, len(ml.baseFields)+len(args)/2)
	for k, v := range ml.baseFields {
		fields[k] = v
	}

	// Parse variadic args as key-value pairs
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprintf("%v", args[i])] = args[i+1]
	}

	if ml.console != nil {
		ml.console.log(level, msg, ml.component, ml.source, fields)
	}

	if ml.file != nil {
		ml.file.log(level, msg, ml.component, ml.source, fields)
	}
}

// NoOpLogger is a logger that does nothing (for testing)
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{})           {}
func (n *NoOpLogger) Info(msg string, args ...interface{})            {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})            {}
func (n *NoOpLogger) Error(msg string, args ...interface{})           {}
func (n *NoOpLogger) WithFields(fields map[string]interface{}) Logger { return n }
func (n *NoOpLogger) WithComponent(component Component) Logger        { return n }
func (n *NoOpLogger) WithSource(source LogSource) Logger              { return n }
func (n *NoOpLogger) Close() error                                    { return nil }

// Ensure NoOpLogger implements Logger
var _ Logger = (*NoOpLogger)(nil)

// Global default logger (can be replaced)
var defaultLogger Logger = &NoOpLogger{}
var loggerMu sync.RWMutex

// SetDefault sets the global default logger
func SetDefault(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = l
}

// Default returns the global default logger
func Default() Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// Helper functions for convenience (use default logger)

func Debug(msg string, args ...interface{}) { Default().Debug(msg, args...) }
func Info(msg string, args ...interface{})  { Default().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { Default().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { Default().Error(msg, args...) }

// Writer adapts a Logger to io.Writer at a fixed level
type Writer struct {
	logger Logger
	level  LogLevel
}

func NewWriter(logger Logger, level LogLevel) io.Writer {
	return &Writer{logger: logger, level: level}
}

func (w *Writer) Write(p []byte) (n int, err error) {
	msg := string(p)
	switch w.level {
	case LevelDebug:
		w.logger.Debug(msg)
	case LevelWarn:
		w.logger.Warn(msg)
	case LevelError:
		w.logger.Error(msg)
	default:
		w.logger.Info(msg)
	}
	return len(p), nil
}
