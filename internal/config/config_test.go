package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := *Default()
	cfg.Text.APIKey = "sk-test-1234567890"
	cfg.Image.APIKey = "sk-test-1234567890"
	cfg.Paths.OutputDir = "output"
	cfg.Paths.DBPath = "jobs.db"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "mock providers need no key",
			mutate: func(c *Config) {
				c.Text.Provider, c.Text.APIKey = "mock", ""
				c.Image.Provider, c.Image.APIKey = "mock", ""
			},
			wantErr: false,
		},
		{
			name:    "missing text key",
			mutate:  func(c *Config) { c.Text.APIKey = "" },
			wantErr: true,
			errMsg:  "APIKey",
		},
		{
			name:    "unknown image provider",
			mutate:  func(c *Config) { c.Image.Provider = "midjourney" },
			wantErr: true,
			errMsg:  "Provider",
		},
		{
			name:    "bad layout format",
			mutate:  func(c *Config) { c.Layout.Format = "docx" },
			wantErr: true,
			errMsg:  "Format",
		},
		{
			name:    "too many image attempts",
			mutate:  func(c *Config) { c.Limits.ImageAttempts = 50 },
			wantErr: true,
			errMsg:  "ImageAttempts",
		},
		{
			name:    "zero limits fall back to defaults",
			mutate:  func(c *Config) { c.Limits = Limits{} },
			wantErr: false,
		},
		{
			name:    "invalid feed url",
			mutate:  func(c *Config) { c.Trends.Feeds = []string{"not a url"} },
			wantErr: true,
			errMsg:  "Feeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.ImageAttempts != 3 {
		t.Errorf("ImageAttempts = %d, want 3", l.ImageAttempts)
	}
	if l.ImageBackoff != 2*time.Second {
		t.Errorf("ImageBackoff = %v, want 2s", l.ImageBackoff)
	}
	if l.ImageParallelism != 1 {
		t.Errorf("ImageParallelism = %d, want 1", l.ImageParallelism)
	}
	if l.MaxContextChars != 2000 {
		t.Errorf("MaxContextChars = %d, want 2000", l.MaxContextChars)
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("IDEOGRAM_API_KEY", "ideo-env-key")
	t.Setenv("BOOKFORGE_OUTPUT_DIR", "")

	path := filepath.Join(dir, "config.yaml")
	yamlData := `text:
  provider: mock
  model: test-model
  timeout: 30s
image:
  provider: ideogram
  api_key: ${IDEOGRAM_API_KEY}
  timeout: 1m
paths:
  output_dir: out
  db_path: jobs.db
layout:
  format: html
  page_size: A5
  compose_mode: alternate
  image_fallback: record
limits:
  image_attempts: 5
  image_backoff: 10ms
  image_delay: 0s
  image_parallelism: 2
  unit_timeout: 30s
  image_timeout: 30s
  max_context_chars: 1000
  translate_workers: 2
  total_timeout: 10m
  rate_limit:
    requests_per_minute: 10
    burst_size: 1
`
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Image.APIKey != "ideo-env-key" {
		t.Errorf("Image.APIKey = %q, want env value", cfg.Image.APIKey)
	}
	if cfg.Layout.Format != "html" || cfg.Layout.ComposeMode != "alternate" {
		t.Errorf("Layout = %+v", cfg.Layout)
	}
	if cfg.Limits.ImageAttempts != 5 || cfg.Limits.ImageBackoff != 10*time.Millisecond {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Text.APIKey != "sk-from-env" {
		t.Errorf("Text.APIKey = %q", cfg.Text.APIKey)
	}
}

func TestLoadFromOverridesBeforeValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "absent.yaml")

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("LoadFrom() without keys should fail validation")
	}

	cfg, err := LoadFrom(path, func(c *Config) {
		c.Text.Provider = "mock"
		c.Image.Provider = "mock"
	})
	if err != nil {
		t.Fatalf("LoadFrom() with override error = %v", err)
	}
	if cfg.Text.Provider != "mock" || cfg.Image.Provider != "mock" {
		t.Errorf("providers = %q, %q", cfg.Text.Provider, cfg.Image.Provider)
	}
}

func TestSaveMasksKeys(t *testing.T) {
	cfg := validConfig()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-test") {
		t.Error("saved config contains a raw API key")
	}
	if !strings.Contains(string(data), "${OPENAI_API_KEY}") {
		t.Error("saved config lacks key placeholder")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("BOOKFORGE_CONFIG", "/tmp/explicit.yaml")
	if got := getConfigPath(); got != "/tmp/explicit.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}

	t.Setenv("BOOKFORGE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := getConfigPath(); got != filepath.Join("/xdg", "bookforge", "config.yaml") {
		t.Errorf("getConfigPath() = %q", got)
	}
}
