// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds native-bridge configuration.
type Config struct {
	// HTTP listener (BRIDGE_HTTP_ADDR preferred, e.g. "0.0.0.0:3000")
	HTTPAddr           string        `envconfig:"BRIDGE_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"3000"`
	WSPath             string        `envconfig:"BRIDGE_WS_PATH" default:"/ws"`
	StaticDir          string        `envconfig:"BRIDGE_STATIC_DIR"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// File-system bridge
	FSRoot     string        `envconfig:"BRIDGE_FS_ROOT"`
	AsyncDelay time.Duration `envconfig:"BRIDGE_ASYNC_DELAY" default:"0s"`

	// Capability manifest
	ManifestFile string `envconfig:"BRIDGE_MANIFEST_FILE"`

	// COMMS: optional NATS channel and diagnostics subject.
	COMMSEnabled       bool   `envconfig:"BRIDGE_COMMS_ENABLED" default:"false"`
	COMMSURL           string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName          string `envconfig:"SERVICE_NAME" default:"native-bridge"`
	SubjectPrefix      string `envconfig:"BRIDGE_SUBJECT_PREFIX" default:"bridge"`
	DiagnosticsSubject string `envconfig:"BRIDGE_DIAGNOSTICS_SUBJECT"`

	// Database (optional diagnostics sink)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Tracing
	OTelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListenAddr returns BRIDGE_HTTP_ADDR, or ":<HTTP_PORT>" when unset.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// TracingEnabled reports whether spans should be exported.
func (c *Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateForServe checks required config when running the bridge server.
func (c *Config) ValidateForServe() error {
	if c.HTTPAddr == "" && (c.HTTPPort <= 0 || c.HTTPPort > 65535) {
		return fmt.Errorf("%s - HTTP_PORT must be between 1 and 65535", logPrefix)
	}
	if !strings.HasPrefix(c.WSPath, "/") || c.WSPath == "/" {
		return fmt.Errorf("%s - BRIDGE_WS_PATH must be an absolute path other than /", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.AsyncDelay < 0 {
		return fmt.Errorf("%s - BRIDGE_ASYNC_DELAY must not be negative", logPrefix)
	}
	if c.COMMSEnabled && c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required when BRIDGE_COMMS_ENABLED is set", logPrefix)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, diagnostics).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
