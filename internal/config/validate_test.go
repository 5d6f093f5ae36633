package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, len(issues))
	for i, is := range issues {
		paths[i] = is.Path
	}
	return paths
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidateIssues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad bind", func(c *Config) { c.Server.Bind = "everywhere" }, "server.bind"},
		{"custom bind without host", func(c *Config) { c.Server.Bind = "custom" }, "server.customBindHost"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad style", func(c *Config) { c.Logging.ConsoleStyle = "fancy" }, "logging.consoleStyle"},
		{"negative concurrency", func(c *Config) { c.Plugins.Concurrency = -1 }, "plugins.concurrency"},
		{"negative timeout", func(c *Config) { c.Plugins.ProbeTimeout = -1 }, "plugins.probeTimeout"},
		{"unknown kind", func(c *Config) {
			c.Plugins.Overrides = map[string]map[string]map[string]any{"exporter": {}}
		}, "plugins.overrides.exporter"},
		{"non-bool enabled", func(c *Config) {
			c.Plugins.Overrides = map[string]map[string]map[string]any{
				"distributor": {"rsync": {"enabled": "yes"}},
			}
		}, "plugins.overrides.distributor.rsync.enabled"},
		{"case-folded duplicate", func(c *Config) {
			c.Plugins.Overrides = map[string]map[string]map[string]any{
				"importer": {"Yum": {}, "yum": {}},
			}
		}, "plugins.overrides.importer.yum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.path, issues[0].Path)
			assert.Contains(t, issues[0].String(), tt.path)
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -5
	cfg.Logging.Level = "noisy"
	assert.Equal(t, []string{"server.port", "logging.level"}, issuePaths(Validate(&cfg)))
}
