package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

var allEnvVars = []string{
	"BRIDGE_HTTP_ADDR", "HTTP_PORT", "BRIDGE_WS_PATH", "BRIDGE_STATIC_DIR", "HEALTH_CHECK_TIMEOUT",
	"BRIDGE_FS_ROOT", "BRIDGE_ASYNC_DELAY", "BRIDGE_MANIFEST_FILE",
	"BRIDGE_COMMS_ENABLED", "COMMS_URL", "SERVICE_NAME", "BRIDGE_SUBJECT_PREFIX", "BRIDGE_DIAGNOSTICS_SUBJECT",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_ENABLED", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		if v, ok := os.LookupEnv(env); ok {
			t.Cleanup(func() { os.Setenv(env, v) })
		}
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("config:config_test - HTTPPort = %d, want 3000", cfg.HTTPPort)
	}
	if cfg.ListenAddr() != ":3000" {
		t.Errorf("config:config_test - ListenAddr = %q, want :3000", cfg.ListenAddr())
	}
	if cfg.WSPath != "/ws" {
		t.Errorf("config:config_test - WSPath = %q, want /ws", cfg.WSPath)
	}
	if cfg.AsyncDelay != 0 {
		t.Errorf("config:config_test - AsyncDelay = %v, want 0", cfg.AsyncDelay)
	}
	if cfg.COMMSEnabled {
		t.Error("config:config_test - expected COMMSEnabled=false by default")
	}
	if cfg.COMMSName != "native-bridge" {
		t.Errorf("config:config_test - COMMSName = %q, want native-bridge", cfg.COMMSName)
	}
	if cfg.SubjectPrefix != "bridge" {
		t.Errorf("config:config_test - SubjectPrefix = %q, want bridge", cfg.SubjectPrefix)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want migrations", cfg.MigrationPath)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.TracingEnabled() {
		t.Error("config:config_test - tracing should be off without an endpoint")
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("config:config_test - SlogLevel = %v, want info", cfg.SlogLevel())
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - ValidateForDB should require DATABASE_URL")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"BRIDGE_HTTP_ADDR":            "127.0.0.1:9000",
		"BRIDGE_WS_PATH":              "/bridge",
		"BRIDGE_STATIC_DIR":           "/srv/www",
		"BRIDGE_FS_ROOT":              "/home/u/projects",
		"BRIDGE_ASYNC_DELAY":          "10ms",
		"BRIDGE_MANIFEST_FILE":        "/etc/bridge.yaml",
		"BRIDGE_COMMS_ENABLED":        "true",
		"COMMS_URL":                   "nats://custom:4222",
		"BRIDGE_SUBJECT_PREFIX":       "editor",
		"BRIDGE_DIAGNOSTICS_SUBJECT":  "ops.bridge",
		"DATABASE_URL":                "postgres://test@localhost/test",
		"RUN_MIGRATIONS":              "true",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4318",
		"LOG_LEVEL":                   "debug",
	}
	for k, v := range overrides {
		t.Setenv(k, v)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.ListenAddr() != "127.0.0.1:9000" {
		t.Errorf("config:config_test - ListenAddr = %q", cfg.ListenAddr())
	}
	if cfg.WSPath != "/bridge" || cfg.StaticDir != "/srv/www" || cfg.FSRoot != "/home/u/projects" {
		t.Errorf("config:config_test - paths = %q %q %q", cfg.WSPath, cfg.StaticDir, cfg.FSRoot)
	}
	if cfg.AsyncDelay != 10*time.Millisecond {
		t.Errorf("config:config_test - AsyncDelay = %v, want 10ms", cfg.AsyncDelay)
	}
	if cfg.ManifestFile != "/etc/bridge.yaml" {
		t.Errorf("config:config_test - ManifestFile = %q", cfg.ManifestFile)
	}
	if !cfg.COMMSEnabled || cfg.COMMSURL != "nats://custom:4222" || cfg.SubjectPrefix != "editor" || cfg.DiagnosticsSubject != "ops.bridge" {
		t.Errorf("config:config_test - comms = %+v", cfg)
	}
	if !cfg.RunMigrations || cfg.DatabaseURL == "" {
		t.Error("config:config_test - expected database overrides")
	}
	if !cfg.TracingEnabled() {
		t.Error("config:config_test - expected tracing with an endpoint")
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("config:config_test - SlogLevel = %v, want debug", cfg.SlogLevel())
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - unexpected validation error: %v", err)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("BRIDGE_ASYNC_DELAY", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Error("config:config_test - expected error for invalid duration")
	}
}

func TestValidateForServe(t *testing.T) {
	valid := func() *Config {
		return &Config{HTTPPort: 3000, WSPath: "/ws", HealthCheckTimeout: time.Second, COMMSURL: "nats://x:4222"}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port out of range", mutate: func(c *Config) { c.HTTPPort = 70000 }, wantErr: true},
		{name: "explicit addr ignores port", mutate: func(c *Config) { c.HTTPPort = 0; c.HTTPAddr = ":8081" }},
		{name: "relative ws path", mutate: func(c *Config) { c.WSPath = "ws" }, wantErr: true},
		{name: "root ws path", mutate: func(c *Config) { c.WSPath = "/" }, wantErr: true},
		{name: "zero health timeout", mutate: func(c *Config) { c.HealthCheckTimeout = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.AsyncDelay = -time.Millisecond }, wantErr: true},
		{name: "comms without url", mutate: func(c *Config) { c.COMMSEnabled = true; c.COMMSURL = "" }, wantErr: true},
		{name: "migrations without database", mutate: func(c *Config) { c.RunMigrations = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.ValidateForServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe() err = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}
