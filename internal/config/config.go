package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete drivefs configuration.
type Configuration struct {
	Drive   DriveConfig   `yaml:"drive"`
	Upload  UploadConfig  `yaml:"upload"`
	Cache   CacheConfig   `yaml:"cache"`
	Retry   RetryConfig   `yaml:"retry"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DriveConfig represents remote-API settings.
type DriveConfig struct {
	// RootID is the Drive folder ID the filesystem is rooted at.
	// "root" addresses the account's My Drive root.
	RootID string `yaml:"root_id"`

	// TrashOnDelete selects move-to-trash as the default delete mode.
	TrashOnDelete bool `yaml:"trash_on_delete"`

	// AcknowledgeAbuse permits downloading files Drive has flagged.
	AcknowledgeAbuse bool `yaml:"acknowledge_abuse"`

	// PageSize is the listing page size requested from the API (1..1000).
	PageSize int64 `yaml:"page_size"`

	// RequestTimeout is the per-remote-call deadline.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// UploadConfig represents content upload settings.
type UploadConfig struct {
	// ResumableThreshold is the content size (human units allowed, e.g.
	// "8MB") above which uploads use the resumable protocol.
	ResumableThreshold string `yaml:"resumable_threshold"`

	// ChunkSize is the resumable upload chunk size.
	ChunkSize string `yaml:"chunk_size"`
}

// CacheConfig represents directory/path cache settings.
type CacheConfig struct {
	// TTL bounds how long a cached directory listing is trusted.
	TTL time.Duration `yaml:"ttl"`

	// MaxDirs caps the number of directories with cached listings.
	MaxDirs int `yaml:"max_dirs"`
}

// RetryConfig represents the retry envelope for transient failures.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig represents the prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// DefaultConfiguration returns the default configuration.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Drive: DriveConfig{
			RootID:         "root",
			TrashOnDelete:  true,
			PageSize:       1000,
			RequestTimeout: 2 * time.Minute,
		},
		Upload: UploadConfig{
			ResumableThreshold: "8MB",
			ChunkSize:          "8MB",
		},
		Cache: CacheConfig{
			TTL:     time.Minute,
			MaxDirs: 10000,
		},
		Retry: RetryConfig{
			MaxAttempts:  8,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     20 * time.Second,
			Multiplier:   1.618,
			Jitter:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from a YAML file, layered over defaults, with
// environment overrides applied last.
func Load(path string) (*Configuration, error) {
	cfg := DefaultConfiguration()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies DRIVEFS_* environment variables.
func (c *Configuration) applyEnvironmentOverrides() {
	if v := os.Getenv("DRIVEFS_ROOT_ID"); v != "" {
		c.Drive.RootID = v
	}
	if v := os.Getenv("DRIVEFS_TRASH_ON_DELETE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Drive.TrashOnDelete = b
		}
	}
	if v := os.Getenv("DRIVEFS_ACKNOWLEDGE_ABUSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Drive.AcknowledgeAbuse = b
		}
	}
	if v := os.Getenv("DRIVEFS_PAGE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Drive.PageSize = n
		}
	}
	if v := os.Getenv("DRIVEFS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DRIVEFS_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}
}

// Validate checks the configuration for consistency.
func (c *Configuration) Validate() error {
	if c.Drive.RootID == "" {
		return fmt.Errorf("drive.root_id must not be empty")
	}
	if c.Drive.PageSize < 1 || c.Drive.PageSize > 1000 {
		return fmt.Errorf("drive.page_size must be in [1,1000], got %d", c.Drive.PageSize)
	}
	if c.Drive.RequestTimeout <= 0 {
		return fmt.Errorf("drive.request_timeout must be positive")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	if _, err := ParseSize(c.Upload.ResumableThreshold); err != nil {
		return fmt.Errorf("upload.resumable_threshold: %w", err)
	}
	if _, err := ParseSize(c.Upload.ChunkSize); err != nil {
		return fmt.Errorf("upload.chunk_size: %w", err)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}

// ResumableThresholdBytes returns the parsed resumable upload threshold.
func (c *Configuration) ResumableThresholdBytes() int64 {
	n, _ := ParseSize(c.Upload.ResumableThreshold)
	return n
}

// ChunkSizeBytes returns the parsed resumable upload chunk size.
func (c *Configuration) ChunkSizeBytes() int64 {
	n, _ := ParseSize(c.Upload.ChunkSize)
	return n
}

// ParseSize parses human-readable sizes like "512KB", "8MB", "1GB".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("size must not be empty")
	}

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		value  int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.value
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("size must not be negative")
	}
	return int64(n * float64(multiplier)), nil
}
