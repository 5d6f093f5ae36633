package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, DefaultProbeTimeout, cfg.Plugins.ProbeTimeout)
	assert.Equal(t, DefaultConcurrency, cfg.Plugins.Concurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.ConsoleStyle)
	assert.True(t, cfg.Store.Recording())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
plugins:
  importers: /srv/importers
  probeTimeout: 3s
  concurrency: 2
  overrides:
    importer:
      yum:
        enabled: false
        feed: http://example.com
server:
  port: 9000
store:
  recordDiscovery: false
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/importers", cfg.Plugins.Importers)
	assert.Equal(t, 3*time.Second, cfg.Plugins.ProbeTimeout)
	assert.Equal(t, 2, cfg.Plugins.Concurrency)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.False(t, cfg.Store.Recording())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.ConsoleStyle)

	yum := cfg.Overrides("importer")["yum"]
	require.NotNil(t, yum)
	assert.Equal(t, false, yum["enabled"])
	assert.Equal(t, "http://example.com", yum["feed"])
	assert.Nil(t, cfg.Overrides("distributor"))
}

func TestOverridesFoldCase(t *testing.T) {
	cfg, err := Load(writeConfig(t, "plugins:\n  overrides:\n    importer:\n      Yum:\n        enabled: false\n"))
	require.NoError(t, err)

	byName := cfg.Overrides("importer")
	require.Contains(t, byName, "yum")
	assert.Equal(t, false, byName["yum"]["enabled"])
	assert.NotContains(t, byName, "Yum")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DEPOT_SERVER_PORT", "7777")
	t.Setenv("DEPOT_LOG_LEVEL", "WARN")
	t.Setenv("DEPOT_PLUGINS_DIR", "/opt/plugins")

	path := writeConfig(t, "server:\n  port: 9000\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, filepath.Join("/opt/plugins", "importers"), cfg.Plugins.Importers)
	assert.Equal(t, filepath.Join("/opt/plugins", "distributors"), cfg.Plugins.Distributors)
}

func TestLoadExpandsToken(t *testing.T) {
	t.Setenv("DEPOT_TEST_TOKEN", "s3cret")
	path := writeConfig(t, "server:\n  auth:\n    token: ${DEPOT_TEST_TOKEN}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.Auth.Token)
}

func TestExpandEnvVarsUnset(t *testing.T) {
	assert.Equal(t, "${DEPOT_DEFINITELY_UNSET}", expandEnvVars("${DEPOT_DEFINITELY_UNSET}"))
}

func TestApplyPaths(t *testing.T) {
	p := Paths{
		Importers:    "/base/plugins/importers",
		Distributors: "/base/plugins/distributors",
		Database:     "/base/data/depot.db",
	}

	cfg := Defaults()
	cfg.Plugins.Distributors = "/custom/dist"
	cfg.ApplyPaths(p)

	assert.Equal(t, "/base/plugins/importers", cfg.Plugins.Importers)
	assert.Equal(t, "/custom/dist", cfg.Plugins.Distributors)
	assert.Equal(t, "/base/data/depot.db", cfg.Store.Path)
}

func TestApplyPathsExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Defaults()
	cfg.Plugins.Importers = "~/imp"
	cfg.ApplyPaths(Paths{})
	assert.Equal(t, filepath.Join(home, "imp"), cfg.Plugins.Importers)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "\n"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadZeroValuesKeepDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n  bind: \"\"\nlogging:\n  level: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadBadEnvPort(t *testing.T) {
	t.Setenv("DEPOT_SERVER_PORT", "eighty")
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Message, "DEPOT_SERVER_PORT")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, filepath.Join(home, "x"), expandHome("~/x"))
	assert.Equal(t, "~bob/x", expandHome("~bob/x"))
	assert.Equal(t, "/abs", expandHome("/abs"))
}

func TestDocumentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	doc, err := OpenDocument(path)
	require.NoError(t, err)
	_, ok := doc.Get(Key{"server"})
	assert.False(t, ok)

	doc.Set(Key{"server", "port"}, 8080)
	require.NoError(t, doc.Save())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
