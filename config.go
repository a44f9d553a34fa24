package dlpscan

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the scanning service. Values are read
// from PRESIDIO_SIT_-prefixed environment variables; zero values fall back
// to the defaults below.
type Config struct {
	// DatabaseURL locates the SQLite database. Accepts either a plain file
	// path or a sqlite:/// URL as used by the deployment tooling.
	DatabaseURL string `env:"DATABASE_URL"`

	// RedisURL is the scan-queue broker. Empty selects the in-process queue.
	RedisURL string `env:"REDIS_URL"`

	// StoragePath is where uploaded files are written by the server.
	StoragePath string `env:"STORAGE_PATH"`

	// ScanRoot is the default root directory for path-based scan requests.
	ScanRoot string `env:"SCAN_ROOT"`

	// Archive and file safety limits.
	MaxArchiveDepth int   `env:"MAX_ARCHIVE_DEPTH"`
	MaxArchiveFiles int   `env:"MAX_ARCHIVE_FILES"`
	MaxArchiveBytes int64 `env:"MAX_ARCHIVE_BYTES"`
	MaxFileSizeMB   int64 `env:"MAX_FILE_SIZE_MB"`

	// Email extraction limits.
	MaxEmailAttachments int   `env:"MAX_EMAIL_ATTACHMENTS"`
	MaxEmailBytes       int64 `env:"MAX_EMAIL_BYTES"`

	// OCR behavior.
	OCRMaxPages    int `env:"OCR_MAX_PAGES"`
	OCRConcurrency int `env:"OCR_CONCURRENCY"`

	LogLevel string `env:"LOG_LEVEL"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		DatabaseURL:         "dlpscan.db",
		StoragePath:         "/data/uploads",
		ScanRoot:            "/data/uploads",
		MaxArchiveDepth:     3,
		MaxArchiveFiles:     1000,
		MaxArchiveBytes:     512 << 20, // 512 MiB of extracted content
		MaxFileSizeMB:       250,
		MaxEmailAttachments: 50,
		MaxEmailBytes:       100 << 20,
		OCRMaxPages:         20,
		OCRConcurrency:      2,
		LogLevel:            "INFO",
	}
}

// LoadConfig reads configuration from the environment (and a .env file when
// present), layered over DefaultConfig.
func LoadConfig() (Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PRESIDIO_SIT_"}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxArchiveDepth < 0 {
		return fmt.Errorf("%w: max_archive_depth must be >= 0", ErrInvalidConfig)
	}
	if c.MaxArchiveFiles <= 0 {
		return fmt.Errorf("%w: max_archive_files must be > 0", ErrInvalidConfig)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("%w: max_file_size_mb must be > 0", ErrInvalidConfig)
	}
	return nil
}

// resolveDBPath strips the sqlite:// scheme if one is present so the store
// receives a plain filesystem path. Only the scheme is removed: the third
// slash in sqlite:///data/scan.db is the absolute path root and stays.
func (c Config) resolveDBPath() string {
	p := c.DatabaseURL
	if p == "" {
		return "dlpscan.db"
	}
	return strings.TrimPrefix(p, "sqlite://")
}
