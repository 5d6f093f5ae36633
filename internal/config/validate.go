package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/soyeahso/depot/internal/logging"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validBinds         = []string{"loopback", "lan", "custom"}
	validConsoleStyles = []string{"pretty", "compact", "json"}
	validKinds         = []string{"importer", "distributor"}
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port", "port must be 0-65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		add("server.bind", "must be one of %v, got %q", validBinds, cfg.Server.Bind)
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		add("server.customBindHost", "required when bind is custom")
	}

	// Logging
	if cfg.Logging.Level != "" && !slices.Contains(logging.Levels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", logging.Levels, cfg.Logging.Level)
	}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// Plugins
	if cfg.Plugins.Concurrency < 0 {
		add("plugins.concurrency", "must be positive, got %d", cfg.Plugins.Concurrency)
	}
	if cfg.Plugins.ProbeTimeout < 0 {
		add("plugins.probeTimeout", "must be positive, got %s", cfg.Plugins.ProbeTimeout)
	}
	for _, kind := range sortedKeys(cfg.Plugins.Overrides) {
		if !slices.Contains(validKinds, kind) {
			add("plugins.overrides."+kind, "unknown plugin kind, must be one of %v", validKinds)
			continue
		}
		byName := cfg.Plugins.Overrides[kind]
		folded := make(map[string]string, len(byName))
		for _, name := range sortedKeys(byName) {
			if prev, dup := folded[strings.ToLower(name)]; dup {
				add("plugins.overrides."+kind+"."+name, "same plugin as %q, names are case-insensitive", prev)
			}
			folded[strings.ToLower(name)] = name
			if v, ok := byName[name]["enabled"]; ok {
				if _, isBool := v.(bool); !isBool {
					add("plugins.overrides."+kind+"."+name+".enabled", "must be a boolean, got %T", v)
				}
			}
		}
	}

	return issues
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
