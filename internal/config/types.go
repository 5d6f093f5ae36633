package config

import "time"

// Config is the root configuration for depot.
type Config struct {
	Plugins PluginsConfig `yaml:"plugins,omitempty"`
	Server  ServerConfig  `yaml:"server,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// PluginsConfig locates plugin roots and tunes discovery.
type PluginsConfig struct {
	Importers    string        `yaml:"importers,omitempty"`    // root holding importer packages
	Distributors string        `yaml:"distributors,omitempty"` // root holding distributor packages
	ProbeTimeout time.Duration `yaml:"probeTimeout,omitempty"` // per-package metadata timeout
	Concurrency  int           `yaml:"concurrency,omitempty"`  // packages probed at once

	// Overrides are merged over a plugin's sidecar configuration.
	// Keyed by kind ("importer" | "distributor"), then lower-cased plugin name.
	Overrides map[string]map[string]map[string]any `yaml:"overrides,omitempty"`
}

// ServerConfig controls the HTTP introspection server.
type ServerConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	Auth           ServerAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
}

// ServerAuth guards the mutating endpoints.
type ServerAuth struct {
	Token string `yaml:"token,omitempty"`
}

// StoreConfig configures the discovery history database.
type StoreConfig struct {
	Path            string `yaml:"path,omitempty"`
	RecordDiscovery *bool  `yaml:"recordDiscovery,omitempty"` // defaults to true
}

// Recording reports whether discovery runs should be persisted.
func (s StoreConfig) Recording() bool {
	return s.RecordDiscovery == nil || *s.RecordDiscovery
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
