package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfiguration(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfiguration()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	if cfg.Drive.RootID != "root" {
		t.Errorf("RootID = %q, want \"root\"", cfg.Drive.RootID)
	}
	if !cfg.Drive.TrashOnDelete {
		t.Error("TrashOnDelete should default to true")
	}
	if cfg.Retry.MaxAttempts != 8 {
		t.Errorf("Retry.MaxAttempts = %d, want 8", cfg.Retry.MaxAttempts)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("Cache.TTL = %v, want 1m", cfg.Cache.TTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
drive:
  root_id: folder-xyz
  trash_on_delete: false
  page_size: 250
cache:
  ttl: 30s
  max_dirs: 500
retry:
  max_attempts: 3
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load = %v", err)
	}
	if cfg.Drive.RootID != "folder-xyz" {
		t.Errorf("RootID = %q, want \"folder-xyz\"", cfg.Drive.RootID)
	}
	if cfg.Drive.TrashOnDelete {
		t.Error("TrashOnDelete should be false from file")
	}
	if cfg.Drive.PageSize != 250 {
		t.Errorf("PageSize = %d, want 250", cfg.Drive.PageSize)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache.TTL = %v, want 30s", cfg.Cache.TTL)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	// Unset fields keep defaults.
	if cfg.Upload.ResumableThreshold != "8MB" {
		t.Errorf("ResumableThreshold = %q, want default \"8MB\"", cfg.Upload.ResumableThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load of missing file should fail")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DRIVEFS_ROOT_ID", "env-root")
	t.Setenv("DRIVEFS_TRASH_ON_DELETE", "false")
	t.Setenv("DRIVEFS_PAGE_SIZE", "100")
	t.Setenv("DRIVEFS_LOG_LEVEL", "warn")
	t.Setenv("DRIVEFS_METRICS_ADDR", ":9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load = %v", err)
	}
	if cfg.Drive.RootID != "env-root" {
		t.Errorf("RootID = %q, want \"env-root\"", cfg.Drive.RootID)
	}
	if cfg.Drive.TrashOnDelete {
		t.Error("TrashOnDelete should be overridden to false")
	}
	if cfg.Drive.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", cfg.Drive.PageSize)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want \"warn\"", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9999" {
		t.Errorf("Metrics = %+v, want enabled at :9999", cfg.Metrics)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	mutations := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"empty root id", func(c *Configuration) { c.Drive.RootID = "" }},
		{"page size too small", func(c *Configuration) { c.Drive.PageSize = 0 }},
		{"page size too large", func(c *Configuration) { c.Drive.PageSize = 1001 }},
		{"non-positive timeout", func(c *Configuration) { c.Drive.RequestTimeout = 0 }},
		{"negative ttl", func(c *Configuration) { c.Cache.TTL = -time.Second }},
		{"zero attempts", func(c *Configuration) { c.Retry.MaxAttempts = 0 }},
		{"multiplier below one", func(c *Configuration) { c.Retry.Multiplier = 0.5 }},
		{"bad threshold", func(c *Configuration) { c.Upload.ResumableThreshold = "lots" }},
		{"bad log level", func(c *Configuration) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range mutations {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfiguration()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate = nil, want error")
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"512", 512, false},
		{"512B", 512, false},
		{"4KB", 4 << 10, false},
		{"8MB", 8 << 20, false},
		{"1GB", 1 << 30, false},
		{"1TB", 1 << 40, false},
		{"1.5MB", 1536 << 10, false},
		{" 2 MB ", 2 << 20, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-1MB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSize(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSize(%q) = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSizeAccessors(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfiguration()
	if got := cfg.ResumableThresholdBytes(); got != 8<<20 {
		t.Errorf("ResumableThresholdBytes = %d, want %d", got, 8<<20)
	}
	if got := cfg.ChunkSizeBytes(); got != 8<<20 {
		t.Errorf("ChunkSizeBytes = %d, want %d", got, 8<<20)
	}
}
