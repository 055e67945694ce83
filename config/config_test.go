package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}
	if cfg.Quality != 80 {
		t.Errorf("default quality: got %d, want 80", cfg.Quality)
	}
	if cfg.ArchivePrefix != "psi-perfect-images" {
		t.Errorf("default archive prefix: got %q", cfg.ArchivePrefix)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"quality zero", func(c *Config) { c.Quality = 0 }, true},
		{"quality 101", func(c *Config) { c.Quality = 101 }, true},
		{"quality 1", func(c *Config) { c.Quality = 1 }, false},
		{"quality 100", func(c *Config) { c.Quality = 100 }, false},
		{"method 7", func(c *Config) { c.Method = 7 }, true},
		{"unknown backend", func(c *Config) { c.Backend = "magick" }, true},
		{"vips backend", func(c *Config) { c.Backend = BackendVips }, false},
		{"empty prefix", func(c *Config) { c.ArchivePrefix = " " }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
quality: 65
method: 6
worker_count: 3
fail_fast: true
output_dir: "out"
archive_prefix: "site-images"
watch:
  debounce: 250ms
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Quality != 65 || cfg.Method != 6 || cfg.WorkerCount != 3 {
		t.Errorf("encode fields: got q=%d m=%d w=%d", cfg.Quality, cfg.Method, cfg.WorkerCount)
	}
	if !cfg.FailFast {
		t.Error("fail_fast not applied")
	}
	if cfg.OutputDir != "out" || cfg.ArchivePrefix != "site-images" {
		t.Errorf("output fields: got %q %q", cfg.OutputDir, cfg.ArchivePrefix)
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("debounce: got %v", cfg.Watch.Debounce)
	}
	// Untouched fields keep their defaults.
	if cfg.Backend != BackendNative {
		t.Errorf("backend: got %q, want native", cfg.Backend)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvQuality, "42")
	t.Setenv(EnvBackend, "VIPS")
	t.Setenv(EnvFailFast, "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Quality != 42 {
		t.Errorf("quality: got %d, want 42", cfg.Quality)
	}
	if cfg.Backend != BackendVips {
		t.Errorf("backend: got %q, want vips", cfg.Backend)
	}
	if !cfg.FailFast {
		t.Error("fail fast not applied from env")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// Register the variable with t.Setenv so it is restored, then clear it
	// so only the .env file can provide it.
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvLogLevel+"=warn\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level: got %q, want warn", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvQuality, "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for quality 0")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
