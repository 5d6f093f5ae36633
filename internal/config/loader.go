package config

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envOverrides are applied after the file, in order. A value that does not
// parse fails Load.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string) error
}{
	{"DEPOT_SERVER_PORT", func(cfg *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		cfg.Server.Port = port
		return nil
	}},
	{"DEPOT_SERVER_BIND", func(cfg *Config, v string) error {
		cfg.Server.Bind = v
		return nil
	}},
	{"DEPOT_PLUGINS_DIR", func(cfg *Config, v string) error {
		cfg.Plugins.Importers = filepath.Join(v, "importers")
		cfg.Plugins.Distributors = filepath.Join(v, "distributors")
		return nil
	}},
	{"DEPOT_LOG_LEVEL", func(cfg *Config, v string) error {
		cfg.Logging.Level = strings.ToLower(v)
		return nil
	}},
}

// Load builds the effective Config: defaults, then the file at path if it
// exists, then DEPOT_* environment overrides. ${VAR} references in the auth
// token are expanded last.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := decode(data, &cfg); err != nil {
			return cfg, err
		}
	}

	for _, o := range envOverrides {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		if err := o.apply(&cfg, v); err != nil {
			return cfg, &ConfigError{Message: o.name + ": " + err.Error()}
		}
	}
	cfg.Server.Auth.Token = expandEnvVars(cfg.Server.Auth.Token)
	return cfg, nil
}

// decode overlays data onto cfg and restores defaults for fields the file
// set to their zero value.
func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	def := Defaults()
	fill(&cfg.Plugins.ProbeTimeout, def.Plugins.ProbeTimeout)
	fill(&cfg.Plugins.Concurrency, def.Plugins.Concurrency)
	fill(&cfg.Server.Port, def.Server.Port)
	fill(&cfg.Server.Bind, def.Server.Bind)
	fill(&cfg.Logging.Level, def.Logging.Level)
	fill(&cfg.Logging.ConsoleStyle, def.Logging.ConsoleStyle)
	return nil
}

func fill[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} with its value. Unset variables are kept
// verbatim.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := os.LookupEnv(envRef.FindStringSubmatch(ref)[1]); ok {
			return v
		}
		return ref
	})
}

// expandHome resolves a leading ~ against the user's home directory.
func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
