package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory.
const HomeEnv = "DEPOT_HOME"

// Paths holds resolved filesystem locations for depot state.
type Paths struct {
	Base         string // ~/.depot
	Config       string // <base>/config.yaml
	Plugins      string // <base>/plugins
	Importers    string // <base>/plugins/importers
	Distributors string // <base>/plugins/distributors
	Data         string // <base>/data
	Database     string // <base>/data/depot.db
	Logs         string // <base>/logs
}

// ResolvePaths lays out the standard paths under $DEPOT_HOME, or ~/.depot
// when it is unset.
func ResolvePaths() (Paths, error) {
	base, ok := os.LookupEnv(HomeEnv)
	if !ok || base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".depot")
	}
	return pathsUnder(base), nil
}

func pathsUnder(base string) Paths {
	p := Paths{
		Base:    base,
		Config:  filepath.Join(base, "config.yaml"),
		Plugins: filepath.Join(base, "plugins"),
		Data:    filepath.Join(base, "data"),
		Logs:    filepath.Join(base, "logs"),
	}
	p.Importers = filepath.Join(p.Plugins, "importers")
	p.Distributors = filepath.Join(p.Plugins, "distributors")
	p.Database = filepath.Join(p.Data, "depot.db")
	return p
}

// EnsureDirs creates every directory depot writes into.
func (p Paths) EnsureDirs() error {
	for _, dir := range p.dirs() {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}

func (p Paths) dirs() []string {
	return []string{p.Base, p.Importers, p.Distributors, p.Data, p.Logs}
}
