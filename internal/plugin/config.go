package plugin

import "maps"

// EnabledKey is the only configuration key the registry interprets.
const EnabledKey = "enabled"

// Config is the opaque per-plugin configuration. Apart from EnabledKey its
// contents are passed through untouched.
type Config map[string]any

// DefaultConfig returns the configuration used when a package ships no
// sidecar file.
func DefaultConfig() Config {
	return Config{EnabledKey: true}
}

// Enabled reports whether the plugin should be registered. A missing or
// non-boolean value counts as enabled.
func (c Config) Enabled() bool {
	v, ok := c[EnabledKey].(bool)
	return !ok || v
}

// Clone returns a shallow copy of c. A nil Config clones to an empty one.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	maps.Copy(out, c)
	return out
}

// Merge returns a copy of c with every key of override applied on top.
func (c Config) Merge(override map[string]any) Config {
	out := c.Clone()
	maps.Copy(out, override)
	return out
}
