// Package config loads layered configuration for the client and the
// reference backend: struct defaults first, then an optional YAML file,
// then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location when set.
const ConfigPathEnvVar = "RESUMESYNC_CONFIG"

// defaultConfigPaths lists where a config file is searched, in order.
var defaultConfigPaths = []string{
	"resumesync.yaml",
	"resumesync.yml",
	"/etc/resumesync/config.yaml",
}

// envPrefix namespaces the environment overrides,
// e.g. RESUMESYNC_SERVER_ADDR -> server.addr.
const envPrefix = "RESUMESYNC_"

// Options holds the configuration values for both binaries.
type Options struct {
	Server  ServerOptions  `koanf:"server"`
	Client  ClientOptions  `koanf:"client"`
	Logging LoggingOptions `koanf:"logging"`
}

// ServerOptions configures the reference backend.
type ServerOptions struct {
	// Addr is the listen address (ip:port).
	Addr string `koanf:"addr"`
	// DatabaseDSN is the Postgres connection string.
	DatabaseDSN string `koanf:"database_dsn"`
	// JWTSecret signs issued bearer tokens. Required in production.
	JWTSecret string `koanf:"jwt_secret"`
	// TokenTTL bounds the lifetime of issued tokens.
	TokenTTL time.Duration `koanf:"token_ttl"`
	// TombstoneRetention is how long deleted sections are kept before purge.
	TombstoneRetention time.Duration `koanf:"tombstone_retention"`
	// CleanInterval is how often the tombstone purger runs.
	CleanInterval time.Duration `koanf:"clean_interval"`
}

// ClientOptions configures the sync client.
type ClientOptions struct {
	// ServerURL is the base URL of the backend, e.g. http://localhost:8080.
	ServerURL string `koanf:"server_url"`
	// DataDir is the directory holding the local durable store.
	DataDir string `koanf:"data_dir"`
	// SyncWindow is the sync throttle window.
	SyncWindow time.Duration `koanf:"sync_window"`
	// ProbeInterval is how often connectivity is re-probed.
	ProbeInterval time.Duration `koanf:"probe_interval"`
	// NamespaceQuota caps the number of entries per store namespace.
	NamespaceQuota int `koanf:"namespace_quota"`
	// ProfileTimeout bounds a single profile fetch.
	ProfileTimeout time.Duration `koanf:"profile_timeout"`
	// MaxRetries caps profile fetch retries after the initial attempt.
	MaxRetries int `koanf:"max_retries"`
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration `koanf:"base_delay"`
}

// LoggingOptions configures the zap logger.
type LoggingOptions struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() *Options {
	return &Options{
		Server: ServerOptions{
			Addr:               "localhost:8080",
			DatabaseDSN:        "",
			JWTSecret:          "",
			TokenTTL:           24 * time.Hour,
			TombstoneRetention: 30 * 24 * time.Hour,
			CleanInterval:      time.Hour,
		},
		Client: ClientOptions{
			ServerURL:      "http://localhost:8080",
			DataDir:        ".resumesync",
			SyncWindow:     5 * time.Second,
			ProbeInterval:  15 * time.Second,
			NamespaceQuota: 1000,
			ProfileTimeout: 8 * time.Second,
			MaxRetries:     2,
			BaseDelay:      2 * time.Second,
		},
		Logging: LoggingOptions{
			Level:  "info",
			Format: "json",
		},
	}
}

// Parse loads configuration from defaults, an optional YAML file, and
// environment variables, in increasing order of precedence.
func Parse() (*Options, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// RESUMESYNC_SERVER_DATABASE_DSN -> server.database_dsn
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	opts := &Options{}
	if err := k.Unmarshal("", opts); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return opts, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
