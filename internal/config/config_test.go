package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("RedisURL default mismatch: got %s", cfg.RedisURL)
	}
	if cfg.DispatchInterval != 15*time.Second {
		t.Errorf("DispatchInterval default mismatch: got %v", cfg.DispatchInterval)
	}
	if cfg.ReconcileInterval != 5*time.Minute {
		t.Errorf("ReconcileInterval default mismatch: got %v", cfg.ReconcileInterval)
	}
	if !cfg.PermissionGranted {
		t.Error("PermissionGranted should default to true")
	}
	if !cfg.SpeechEnabled {
		t.Error("SpeechEnabled should default to true")
	}
	if cfg.SpeechDelay != 2*time.Second {
		t.Errorf("SpeechDelay default mismatch: got %v", cfg.SpeechDelay)
	}
	if cfg.Logging == nil {
		t.Fatal("expected logging config to be populated")
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://example:6380")
	t.Setenv("DISPATCH_INTERVAL", "30s")
	t.Setenv("RECONCILE_INTERVAL", "1m")
	t.Setenv("NOTIFICATION_PERMISSION", "false")
	t.Setenv("SPEECH_ENABLED", "false")
	t.Setenv("SPEECH_DELAY", "500ms")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RedisURL != "redis://example:6380" {
		t.Errorf("RedisURL mismatch: got %s", cfg.RedisURL)
	}
	if cfg.DispatchInterval != 30*time.Second {
		t.Errorf("DispatchInterval mismatch: got %v", cfg.DispatchInterval)
	}
	if cfg.ReconcileInterval != time.Minute {
		t.Errorf("ReconcileInterval mismatch: got %v", cfg.ReconcileInterval)
	}
	if cfg.PermissionGranted {
		t.Error("PermissionGranted should be false")
	}
	if cfg.SpeechEnabled {
		t.Error("SpeechEnabled should be false")
	}
	if cfg.SpeechDelay != 500*time.Millisecond {
		t.Errorf("SpeechDelay mismatch: got %v", cfg.SpeechDelay)
	}
}

func TestLoadConfig_DispatchIntervalTooLong(t *testing.T) {
	t.Setenv("DISPATCH_INTERVAL", "2m")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for a dispatch interval over one minute")
	}
}

func TestLoadConfig_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DISPATCH_INTERVAL", "not-a-duration")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DispatchInterval != 15*time.Second {
		t.Errorf("unparseable value should fall back to default, got %v", cfg.DispatchInterval)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "hello")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BAD_INT", "abc")

	if got := getEnv("TEST_STR", "default"); got != "hello" {
		t.Errorf("getEnv: got %s", got)
	}
	if got := getEnv("TEST_MISSING", "default"); got != "default" {
		t.Errorf("getEnv default: got %s", got)
	}
	if got := getEnvAsInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvAsInt: got %d", got)
	}
	if got := getEnvAsInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt fallback: got %d", got)
	}
	if got := getEnvAsBool("TEST_BOOL", false); !got {
		t.Error("getEnvAsBool: expected true")
	}
	if got := getEnvAsDuration("TEST_MISSING", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration default: got %v", got)
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE_ENABLED", "true")
	t.Setenv("LOG_FILE_PATH", "/tmp/test.log")

	cfg := loadLoggingConfig()

	if string(cfg.Level) != "debug" {
		t.Errorf("Level mismatch: got %s", cfg.Level)
	}
	if !cfg.File.Enabled {
		t.Error("File.Enabled should be true")
	}
	if cfg.File.Path != "/tmp/test.log" {
		t.Errorf("File.Path mismatch: got %s", cfg.File.Path)
	}
	if !cfg.Console.Enabled {
		t.Error("Console.Enabled should default to true")
	}
}
