package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	key, err := ParseKey("server.auth.token")
	require.NoError(t, err)
	assert.Equal(t, Key{"server", "auth", "token"}, key)
	assert.Equal(t, "server.auth.token", key.String())

	for _, bad := range []string{"", "server..port", ".server", "plugins.my key"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestDocumentEdit(t *testing.T) {
	doc, err := OpenDocument(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	key := Key{"plugins", "overrides", "importer", "yum", "enabled"}

	doc.Set(key, false)
	v, ok := doc.Get(key)
	require.True(t, ok)
	assert.Equal(t, false, v)

	_, ok = doc.Get(Key{"plugins", "missing"})
	assert.False(t, ok)
	_, ok = doc.Get(Key{"plugins", "overrides", "importer", "yum", "enabled", "deeper"})
	assert.False(t, ok)

	assert.True(t, doc.Unset(key))
	assert.False(t, doc.Unset(key))
	assert.False(t, doc.Unset(Key{"nowhere", "at", "all"}))
	_, ok = doc.Get(key)
	assert.False(t, ok)
}

func TestDocumentSetReplacesScalar(t *testing.T) {
	doc, err := OpenDocument(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	doc.Set(Key{"server"}, "oops")
	doc.Set(Key{"server", "port"}, 9000)

	v, ok := doc.Get(Key{"server", "port"})
	require.True(t, ok)
	assert.Equal(t, 9000, v)
}

func TestDocumentKeepsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "custom:\n  note: keep me\nserver:\n  port: 9000\n")

	doc, err := OpenDocument(path)
	require.NoError(t, err)
	doc.Set(Key{"server", "port"}, 9100)
	require.NoError(t, doc.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "note: keep me")
	assert.Contains(t, string(data), "port: 9100")
}

func TestOpenDocumentInvalid(t *testing.T) {
	_, err := OpenDocument(writeConfig(t, "server: [unclosed"))
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
