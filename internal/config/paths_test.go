package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathsHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv("DEPOT_HOME", base)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, base, p.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(base, "plugins", "importers"), p.Importers)
	assert.Equal(t, filepath.Join(base, "plugins", "distributors"), p.Distributors)
	assert.Equal(t, filepath.Join(base, "data", "depot.db"), p.Database)
}

func TestResolvePathsDefault(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".depot"), p.Base)
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv(HomeEnv, filepath.Join(t.TempDir(), "depot"))
	p, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, p.EnsureDirs())

	for _, d := range p.dirs() {
		info, err := os.Stat(d)
		require.NoError(t, err, d)
		assert.True(t, info.IsDir())
	}
}
