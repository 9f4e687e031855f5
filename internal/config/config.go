// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Provider chain (YAML). Empty means a single fs provider at LocalStoragePath.
	ProvidersFile    string
	LocalStoragePath string

	// TLS (optional, HTTPS when both are set)
	TLSCertFile string
	TLSKeyFile  string

	// Auth (optional, empty disables bearer auth)
	JWTSecret string

	// Archives
	ArchiveFormat      string
	ArchiveName        string
	MaxPaths           int
	MaxDepth           int
	ResolveConcurrency int

	// Quotas
	RequestsPerMinute int
	TrustProxy        bool // key rate limits on X-Forwarded-For
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:        envOr("METRICS_ADDR", ":9090"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		ProvidersFile:      envOr("PROVIDERS_FILE", ""),
		LocalStoragePath:   envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		TLSCertFile:        envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:         envOr("TLS_KEY_FILE", ""),
		JWTSecret:          envOr("JWT_SECRET", ""),
		ArchiveFormat:      strings.ToLower(envOr("ARCHIVE_FORMAT", "zip")),
		ArchiveName:        envOr("ARCHIVE_NAME", "download"),
		MaxPaths:           envInt("MAX_PATHS", 1000),
		MaxDepth:           envInt("MAX_DEPTH", 64),
		ResolveConcurrency: envInt("RESOLVE_CONCURRENCY", 1),
		RequestsPerMinute:  envInt("REQUESTS_PER_MINUTE", 0), // 0 = unlimited
		TrustProxy:         envBool("TRUST_PROXY", false),
	}

	if cfg.MaxPaths < 1 {
		return nil, fmt.Errorf("MAX_PATHS must be positive, got %d", cfg.MaxPaths)
	}
	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("MAX_DEPTH must be positive, got %d", cfg.MaxDepth)
	}
	if cfg.ResolveConcurrency < 1 {
		cfg.ResolveConcurrency = 1
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	return cfg, nil
}

// UseTLS reports whether both TLS files are configured.
func (c *Config) UseTLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
