package config

import (
	"fmt"
	"strings"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultServerPort   = 18790
	DefaultProbeTimeout = 10 * time.Second
	DefaultConcurrency  = 4
)

// Defaults returns a Config with sensible defaults applied. Plugin roots
// and the store path stay empty until ApplyPaths fills them.
func Defaults() Config {
	return Config{
		Plugins: PluginsConfig{
			ProbeTimeout: DefaultProbeTimeout,
			Concurrency:  DefaultConcurrency,
		},
		Server: ServerConfig{
			Port: DefaultServerPort,
			Bind: "loopback",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// ApplyPaths fills unset filesystem locations from the resolved paths.
func (c *Config) ApplyPaths(p Paths) {
	if c.Plugins.Importers == "" {
		c.Plugins.Importers = p.Importers
	}
	if c.Plugins.Distributors == "" {
		c.Plugins.Distributors = p.Distributors
	}
	if c.Store.Path == "" {
		c.Store.Path = p.Database
	}
	c.Plugins.Importers = expandHome(c.Plugins.Importers)
	c.Plugins.Distributors = expandHome(c.Plugins.Distributors)
	c.Store.Path = expandHome(c.Store.Path)
}

// Overrides returns the per-plugin overrides configured for kind, keyed by
// lower-cased plugin name to match discovered metadata names.
func (c *Config) Overrides(kind string) map[string]map[string]any {
	byName := c.Plugins.Overrides[kind]
	if byName == nil {
		return nil
	}
	out := make(map[string]map[string]any, len(byName))
	for name, settings := range byName {
		out[strings.ToLower(name)] = settings
	}
	return out
}
