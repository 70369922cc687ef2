package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.AI.Model != "gpt-4o-mini" {
		t.Errorf("expected default model gpt-4o-mini, got %s", cfg.AI.Model)
	}
	if cfg.Cache.Motivation.TTL != 3*time.Minute {
		t.Errorf("expected motivation ttl 3m, got %v", cfg.Cache.Motivation.TTL)
	}
	if cfg.Cache.Metadata.TTL != 30*24*time.Hour {
		t.Errorf("expected metadata ttl 720h, got %v", cfg.Cache.Metadata.TTL)
	}
	if cfg.Breaker.Cooldown != 30*time.Minute {
		t.Errorf("expected cooldown 30m, got %v", cfg.Breaker.Cooldown)
	}
	if cfg.Throttle.RefineLimit != 5 {
		t.Errorf("expected refine_limit 5, got %d", cfg.Throttle.RefineLimit)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("expected backend file, got %s", cfg.Storage.Backend)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate_EmptyModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.Model = ""
	if err := Validate(cfg); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestValidate_InvalidCacheTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Kit.TTL = 0
	if err := Validate(cfg); err == nil {
		t.Error("expected error for zero ttl")
	}

	cfg = DefaultConfig()
	cfg.Cache.Breakdown.Capacity = -1
	if err := Validate(cfg); err == nil {
		t.Error("expected error for negative capacity")
	}
}

func TestValidate_InvalidBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = "redis"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestValidate_InvalidThrottle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Throttle.RefineLimit = 0
	if err := Validate(cfg); err == nil {
		t.Error("expected error for zero refine_limit")
	}
}

func TestValidate_InvalidExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.Tracing.Exporter = "jaeger"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.Model = ""
	cfg.Breaker.Cooldown = 0
	cfg.Storage.Backend = "redis"
	if err := Validate(cfg); err == nil {
		t.Error("expected multiple validation errors")
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
		{"${NONEXISTENT_VAR:-fallback}", "fallback"},
		{"${NONEXISTENT_VAR}", "${NONEXISTENT_VAR}"},
		{"no-vars-here", "no-vars-here"},
		{"${TEST_VAR:-default}", "hello"}, // env var exists, ignore default
	}

	for _, tt := range tests {
		result := InterpolateEnv(tt.input)
		if result != tt.expected {
			t.Errorf("InterpolateEnv(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
ai:
  model: gpt-4o
  timeout: 10s
  max_retries: 1

cache:
  motivation:
    ttl: 5m
    capacity: 50

breaker:
  cooldown: 1h

storage:
  backend: sqlite
  path: /tmp/tasklift.db
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "tasklift.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.AI.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", cfg.AI.Model)
	}
	if cfg.AI.MaxRetries != 1 {
		t.Errorf("expected max_retries 1, got %d", cfg.AI.MaxRetries)
	}
	if cfg.Cache.Motivation.TTL != 5*time.Minute {
		t.Errorf("expected motivation ttl 5m, got %v", cfg.Cache.Motivation.TTL)
	}
	if cfg.Cache.Motivation.Capacity != 50 {
		t.Errorf("expected motivation capacity 50, got %d", cfg.Cache.Motivation.Capacity)
	}
	// Unset sections keep their defaults.
	if cfg.Cache.Metadata.Capacity != 300 {
		t.Errorf("expected metadata capacity default 300, got %d", cfg.Cache.Metadata.Capacity)
	}
	if cfg.Breaker.Cooldown != time.Hour {
		t.Errorf("expected cooldown 1h, got %v", cfg.Breaker.Cooldown)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("expected backend sqlite, got %s", cfg.Storage.Backend)
	}
}

func TestLoadFromFile_WithEnvInterpolation(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	content := `
ai:
  api_key: ${TEST_API_KEY}
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "tasklift.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.AI.APIKey != "sk-test-123" {
		t.Errorf("expected interpolated API key, got %s", cfg.AI.APIKey)
	}
}

func TestLoadFromFile_InvalidFile(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/path/tasklift.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "tasklift.yaml")
	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := LoadFromFile(cfgPath); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestGenerateTemplate_IsValid(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "tasklift.yaml")
	if err := os.WriteFile(cfgPath, []byte(GenerateTemplate()), 0644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("generated template does not load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("generated template is invalid: %v", err)
	}
}
