package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command against an isolated DEPOT_HOME.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func depotHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("DEPOT_HOME", home)
	t.Setenv("DEPOT_PLUGINS_DIR", "")
	t.Setenv("DEPOT_LOG_LEVEL", "")
	cfgFile = ""
	return home
}

// installPlugin writes a shell code unit exporting name for kind.
func installPlugin(t *testing.T, root, kind, name string, types ...string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("code unit fixtures are shell scripts")
	}
	quoted := make([]string, len(types))
	for i, typ := range types {
		quoted[i] = `"` + typ + `"`
	}
	script := fmt.Sprintf("#!/bin/sh\necho '{\"capabilities\":[{\"kind\":\"%s\",\"name\":\"%s\",\"types\":[%s]}]}'\n",
		kind, name, strings.Join(quoted, ","))

	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, kind), []byte(script), 0o755))
}

func TestVersionCmd(t *testing.T) {
	depotHome(t)
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "depot "))

	out, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var build struct {
		Version string `json:"version"`
		Release bool   `json:"release"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &build))
	assert.Equal(t, "dev", build.Version)
	assert.False(t, build.Release)
}

func TestPluginsList_JSON(t *testing.T) {
	home := depotHome(t)
	installPlugin(t, filepath.Join(home, "plugins", "importers"), "importer", "yum", "rpm")
	installPlugin(t, filepath.Join(home, "plugins", "distributors"), "distributor", "rsync", "iso", "img")

	out, _, err := execute(t, "plugins", "list", "--json")
	require.NoError(t, err)

	var got map[string]struct {
		Plugins map[string]map[string]any `json:"plugins"`
		Types   map[string]string         `json:"types"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]string{"rpm": "yum"}, got["importers"].Types)
	assert.Equal(t, map[string]string{"iso": "rsync", "img": "rsync"}, got["distributors"].Types)
	assert.Equal(t, true, got["importers"].Plugins["yum"]["enabled"])
}

func TestPluginsList_TableAndFailures(t *testing.T) {
	home := depotHome(t)
	root := filepath.Join(home, "plugins", "importers")
	installPlugin(t, root, "importer", "yum", "rpm")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0o755))

	out, errOut, err := execute(t, "plugins", "list", "--kind", "importers")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "yum")
	assert.Contains(t, errOut, "broken")
}

func TestPluginsList_BadKind(t *testing.T) {
	depotHome(t)
	_, _, err := execute(t, "plugins", "list", "--kind", "exporter")
	assert.ErrorContains(t, err, "unknown plugin kind")
}

func TestPluginsCheck(t *testing.T) {
	depotHome(t)
	root := t.TempDir()
	installPlugin(t, root, "distributor", "rsync", "iso")

	out, _, err := execute(t, "plugins", "check", root, "--kind", "distributor")
	require.NoError(t, err)
	assert.Contains(t, out, "ok       rsync")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	out, _, err = execute(t, "plugins", "check", root, "--kind", "distributor")
	assert.ErrorContains(t, err, "1 of 2 package(s) failed")
	assert.Contains(t, out, "failed   "+filepath.Join(root, "empty"))
}

func TestConfigSetGetValidate(t *testing.T) {
	home := depotHome(t)

	_, _, err := execute(t, "config", "set", "server.port", "9000")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "config.yaml"))

	out, _, err := execute(t, "config", "get", "server.port")
	require.NoError(t, err)
	assert.Equal(t, "9000\n", out)

	out, _, err = execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	_, _, err = execute(t, "config", "set", "logging.level", "loud")
	require.NoError(t, err)
	_, errOut, err := execute(t, "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, errOut, "logging.level")
}

func TestConfigUnsetAndShow(t *testing.T) {
	depotHome(t)

	_, _, err := execute(t, "config", "set", "server.auth.token", "s3cret")
	require.NoError(t, err)
	_, _, err = execute(t, "config", "set", "plugins.overrides.importer.yum.enabled", "false")
	require.NoError(t, err)

	out, _, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, "enabled: false")

	out, _, err = execute(t, "config", "unset", "server.auth.token")
	require.NoError(t, err)
	assert.Equal(t, "removed server.auth.token\n", out)

	_, _, err = execute(t, "config", "unset", "server.auth.token")
	assert.ErrorContains(t, err, "not found")
	_, _, err = execute(t, "config", "get", "server..port")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	cases := map[string]any{
		"true":  true,
		"FALSE": false,
		"1":     1,
		"-3":    -3,
		"2.5":   2.5,
		"10s":   "10s",
		"t":     "t",
		"yum":   "yum",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseValue(in), in)
	}
}

func TestStatusCmd(t *testing.T) {
	home := depotHome(t)
	out, _, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(home, "plugins", "importers"))
	assert.Contains(t, out, "concurrency=4")
}
