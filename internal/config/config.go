package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings. It is loaded once at startup and
// treated as read-only afterwards; no secrets are ever hardcoded.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Gemini
	GeminiAPIKey string `env:"GEMINI_API_KEY,required"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	// Persistence backend. Both fields are optional: when they are missing
	// or look like placeholders the app runs in local-analysis-only mode.
	BackendURL string `env:"BACKEND_URL"`
	BackendKey string `env:"BACKEND_KEY"`

	// S3-compatible object storage
	S3Endpoint        string `env:"S3_ENDPOINT" envDefault:"localhost:9000"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID" envDefault:"minioadmin"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" envDefault:"minioadmin"`
	S3BucketName      string `env:"S3_BUCKET_NAME" envDefault:"manga-uploads"`
	S3UseSSL          bool   `env:"S3_USE_SSL" envDefault:"false"`

	// Row store
	DatabaseFile   string `env:"DATABASE_FILE" envDefault:"data/manga_kantei.db"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"internal/db/migrations"`

	// Upload limits
	MaxFileSize int64 `env:"MAX_FILE_SIZE" envDefault:"5242880"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	return cfg, nil
}

// BackendConfigured reports whether the persistence backend looks usable:
// the URL must parse as an absolute http(s) URL and the key must be longer
// than 20 characters, a weak proxy for "a real credential, not a
// placeholder". When false, every persistence operation is a no-op and the
// UI shows local mode rather than an error.
func (c *Config) BackendConfigured() bool {
	rawURL := strings.TrimSpace(c.BackendURL)
	rawKey := strings.TrimSpace(c.BackendKey)

	if rawURL == "" || len(rawKey) <= 20 {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
