package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend selects the codec implementation used for recoding.
type Backend string

const (
	BackendNative Backend = "native" // pure Go, no CGO
	BackendVips   Backend = "vips"   // libvips through govips
)

// DefaultQuality is the WebP quality used when nothing overrides it.
const DefaultQuality = 80

// DefaultArchivePrefix names bundles as <prefix>-<unixMillis>.zip.
const DefaultArchivePrefix = "psi-perfect-images"

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Encode.
	Quality int     `yaml:"quality"` // 1-100
	Method  int     `yaml:"method"`  // encoder effort 0 (fast) - 6 (best)
	Backend Backend `yaml:"backend"`

	// Worker pool controls.
	WorkerCount int           `yaml:"worker_count"` // default: runtime.NumCPU()
	QueueSize   int           `yaml:"queue_size"`   // max queued watch jobs; default 256
	JobTimeout  time.Duration `yaml:"job_timeout"`

	// Batch policy.  When set, the first failing file cancels the rest.
	FailFast bool `yaml:"fail_fast"`

	// Streaming / memory limits.
	MaxImageBytes int64 `yaml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `yaml:"chunk_size"`      // default 32 KiB

	// Output.
	OutputDir     string `yaml:"output_dir"`
	ArchivePrefix string `yaml:"archive_prefix"`
	Permissions   uint32 `yaml:"permissions"` // default 0644

	Watch WatchConfig `yaml:"watch"`

	LogLevel string `yaml:"log_level"` // "debug", "info", "warn", "error"
}

// WatchConfig controls the watch-folder mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Quality:       DefaultQuality,
		Method:        4,
		Backend:       BackendNative,
		WorkerCount:   0, // resolved at runtime to NumCPU
		QueueSize:     256,
		JobTimeout:    30 * time.Second,
		MaxImageBytes: 64 << 20,
		ChunkSize:     32 * 1024,
		OutputDir:     ".",
		ArchivePrefix: DefaultArchivePrefix,
		Permissions:   0o644,
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.Quality < 1 || c.Quality > 100 {
		return errors.New("config: Quality must be between 1 and 100")
	}
	if c.Method < 0 || c.Method > 6 {
		return errors.New("config: Method must be between 0 and 6")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.MaxImageBytes < 0 {
		return errors.New("config: MaxImageBytes must not be negative")
	}
	switch c.Backend {
	case BackendNative, BackendVips:
	default:
		return fmt.Errorf("config: unknown Backend %q", c.Backend)
	}
	if strings.TrimSpace(c.ArchivePrefix) == "" {
		return errors.New("config: ArchivePrefix is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", c.LogLevel)
	}
	return nil
}

// Environment variables recognised by Load.
const (
	EnvQuality   = "IMAGEOPT_QUALITY"
	EnvBackend   = "IMAGEOPT_BACKEND"
	EnvOutputDir = "IMAGEOPT_OUTPUT_DIR"
	EnvLogLevel  = "IMAGEOPT_LOG_LEVEL"
	EnvFailFast  = "IMAGEOPT_FAIL_FAST"
)

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty), a .env file in the working directory when present, and finally
// IMAGEOPT_* environment variables.  The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// A missing .env is normal; only real variables matter.
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(c *Config) error {
	if v, ok := os.LookupEnv(EnvQuality); ok {
		q, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvQuality, err)
		}
		c.Quality = q
	}
	if v, ok := os.LookupEnv(EnvBackend); ok && v != "" {
		c.Backend = Backend(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := os.LookupEnv(EnvOutputDir); ok && v != "" {
		c.OutputDir = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvFailFast); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvFailFast, err)
		}
		c.FailFast = b
	}
	return nil
}
