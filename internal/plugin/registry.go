package plugin

import (
	"sort"
	"sync"

	"github.com/soyeahso/depot/internal/logging"
)

// Record is a registered plugin. It is never mutated while registered.
type Record[T Capability] struct {
	Name   string
	Plugin T
	Config Config
	Types  []string
	Source string // discovery root, empty for direct adds
	Dir    string // package directory, empty for direct adds
}

// config returns a copy of the record's config so callers cannot mutate
// the registration. A nil config stays nil.
func (rec *Record[T]) config() Config {
	if rec.Config == nil {
		return nil
	}
	return rec.Config.Clone()
}

// AddOption customizes a single registration.
type AddOption func(*addOptions)

type addOptions struct {
	types    []string
	typesSet bool
	source   string
	dir      string
}

// WithTypes overrides the content types derived from the plugin's metadata.
// Passing no types registers the plugin by name only.
func WithTypes(types ...string) AddOption {
	return func(o *addOptions) {
		o.types = types
		o.typesSet = true
	}
}

// WithSource tags the registration with the root it was discovered under.
func WithSource(source string) AddOption {
	return func(o *addOptions) {
		o.source = source
	}
}

// WithDir records the package directory the plugin was loaded from.
func WithDir(dir string) AddOption {
	return func(o *addOptions) {
		o.dir = dir
	}
}

// Registry indexes the plugins of a single kind by name and by content type.
// All three maps are guarded by one lock so a reader sees a registration
// either completely or not at all.
type Registry[T Capability] struct {
	kind Kind

	mu      sync.RWMutex
	configs map[string]Config     // name → config
	plugins map[string]*Record[T] // name → record
	types   map[string]string     // content type → name

	log *logging.Logger
}

// NewRegistry creates an empty registry for the given kind.
func NewRegistry[T Capability](kind Kind, log *logging.Logger) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		configs: make(map[string]Config),
		plugins: make(map[string]*Record[T]),
		types:   make(map[string]string),
		log:     log.Sub("registry").With("kind", string(kind)),
	}
}

// Kind returns the kind this registry holds.
func (r *Registry[T]) Kind() Kind { return r.kind }

// Add registers impl under name. Types come from impl.Metadata() unless
// WithTypes is given. A disabled config is silently ignored. On a name or
// type conflict nothing is written and a *ConflictError is returned.
func (r *Registry[T]) Add(name string, impl T, cfg Config, opts ...AddOption) error {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled() {
		r.log.Debug().Str("name", name).Msg("plugin disabled, skipping")
		return nil
	}

	types := o.types
	if !o.typesSet {
		types = impl.Metadata().Types
	}

	rec := &Record[T]{
		Name:   name,
		Plugin: impl,
		Config: cfg,
		Types:  uniqueTypes(types),
		Source: o.source,
		Dir:    o.dir,
	}

	r.mu.Lock()
	err := r.insertLocked(rec)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	r.log.Info().
		Str("name", name).
		Strs("types", rec.Types).
		Msg("plugin registered")
	return nil
}

func (r *Registry[T]) insertLocked(rec *Record[T]) error {
	if _, exists := r.plugins[rec.Name]; exists {
		return &ConflictError{Kind: r.kind, Name: rec.Name}
	}

	var holders map[string]string
	for _, t := range rec.Types {
		if owner, claimed := r.types[t]; claimed {
			if holders == nil {
				holders = make(map[string]string)
			}
			holders[t] = owner
		}
	}
	if len(holders) > 0 {
		return newTypeConflict(r.kind, rec.Name, holders)
	}

	r.configs[rec.Name] = rec.Config
	r.plugins[rec.Name] = rec
	for _, t := range rec.Types {
		r.types[t] = rec.Name
	}
	return nil
}

// Remove unregisters name and every content type mapped to it. Removing an
// unknown name is a no-op. It reports whether anything was removed.
func (r *Registry[T]) Remove(name string) bool {
	r.mu.Lock()
	removed := r.removeLocked(name)
	r.mu.Unlock()

	if removed {
		r.log.Info().Str("name", name).Msg("plugin removed")
	}
	return removed
}

func (r *Registry[T]) removeLocked(name string) bool {
	if _, ok := r.plugins[name]; !ok {
		return false
	}
	delete(r.configs, name)
	delete(r.plugins, name)
	for t, owner := range r.types {
		if owner == name {
			delete(r.types, t)
		}
	}
	return true
}

// ReplaceSource atomically swaps every record discovered under source for
// recs. Disabled records are skipped. A record that conflicts with what is
// already registered is rejected; errs is aligned with recs and holds nil
// for every record that was not rejected. The names that were dropped and
// not re-added are returned as removed.
func (r *Registry[T]) ReplaceSource(source string, recs []*Record[T]) (removed []string, errs []error) {
	r.mu.Lock()
	var dropped []string
	for name, rec := range r.plugins {
		if rec.Source == source {
			dropped = append(dropped, name)
		}
	}
	for _, name := range dropped {
		r.removeLocked(name)
	}
	errs = make([]error, len(recs))
	added, rejected := 0, 0
	for i, rec := range recs {
		if !rec.Config.Enabled() {
			continue
		}
		next := *rec
		next.Source = source
		next.Types = uniqueTypes(rec.Types)
		if err := r.insertLocked(&next); err != nil {
			errs[i] = err
			rejected++
			continue
		}
		added++
	}
	for _, name := range dropped {
		if _, back := r.plugins[name]; !back {
			removed = append(removed, name)
		}
	}
	r.mu.Unlock()

	sort.Strings(removed)
	r.log.Info().
		Str("source", source).
		Int("dropped", len(dropped)).
		Int("added", added).
		Int("rejected", rejected).
		Msg("plugins replaced")
	return removed, errs
}

// fromDir returns a copy of the record discovered under source from dir.
func (r *Registry[T]) fromDir(source, dir string) (*Record[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.plugins {
		if rec.Source == source && rec.Dir == dir {
			out := *rec
			return &out, true
		}
	}
	return nil, false
}

// GetByName returns the plugin and config registered under name.
func (r *Registry[T]) GetByName(name string) (T, Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.plugins[name]
	if !ok {
		var zero T
		return zero, nil, &NotFoundError{Kind: r.kind, Name: name}
	}
	return rec.Plugin, rec.config(), nil
}

// GetByType returns the plugin and config that claims the content type.
func (r *Registry[T]) GetByType(typ string) (T, Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.types[typ]
	if !ok {
		var zero T
		return zero, nil, &NotFoundError{Kind: r.kind, Type: typ}
	}
	rec := r.plugins[name]
	return rec.Plugin, rec.config(), nil
}

// Record returns a copy of the record registered under name.
func (r *Registry[T]) Record(name string) (Record[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.plugins[name]
	if !ok {
		return Record[T]{}, false
	}
	out := *rec
	out.Types = append([]string(nil), rec.Types...)
	return out, true
}

// Description is a kind-agnostic view of one registration.
type Description struct {
	Name   string   `json:"name"`
	Types  []string `json:"types"`
	Config Config   `json:"config"`
	Source string   `json:"source,omitempty"`
}

// Describe returns the registration under name.
func (r *Registry[T]) Describe(name string) (Description, error) {
	rec, ok := r.Record(name)
	if !ok {
		return Description{}, &NotFoundError{Kind: r.kind, Name: name}
	}
	return describe(rec), nil
}

// DescribeType returns the registration that claims typ.
func (r *Registry[T]) DescribeType(typ string) (Description, error) {
	r.mu.RLock()
	name, ok := r.types[typ]
	var rec Record[T]
	if ok {
		rec = *r.plugins[name]
	}
	r.mu.RUnlock()

	if !ok {
		return Description{}, &NotFoundError{Kind: r.kind, Type: typ}
	}
	return describe(rec), nil
}

func describe[T Capability](rec Record[T]) Description {
	return Description{
		Name:   rec.Name,
		Types:  append([]string{}, rec.Types...),
		Config: rec.Config.Clone(),
		Source: rec.Source,
	}
}

// Names returns the registered names, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types returns the claimed content types, sorted.
func (r *Registry[T]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// TypeMap returns a copy of the content type → name index.
func (r *Registry[T]) TypeMap() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.types))
	for t, name := range r.types {
		out[t] = name
	}
	return out
}

// Configs returns a copy of the name → config index.
func (r *Registry[T]) Configs() map[string]Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Config, len(r.configs))
	for name, cfg := range r.configs {
		out[name] = cfg.Clone()
	}
	return out
}

// Snapshot is a consistent view of a registry taken under a single lock.
type Snapshot struct {
	Configs map[string]Config   `json:"plugins"`
	Types   map[string]string   `json:"types"`
	Claims  map[string][]string `json:"-"` // name → declared types
}

// Snapshot returns configs and the type index as of a single instant.
func (r *Registry[T]) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Configs: make(map[string]Config, len(r.configs)),
		Types:   make(map[string]string, len(r.types)),
		Claims:  make(map[string][]string, len(r.plugins)),
	}
	for name, cfg := range r.configs {
		s.Configs[name] = cfg.Clone()
	}
	for t, name := range r.types {
		s.Types[t] = name
	}
	for name, rec := range r.plugins {
		s.Claims[name] = append([]string(nil), rec.Types...)
	}
	return s
}

// Len returns the number of registered plugins.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// uniqueTypes drops duplicates, keeping first-seen order.
func uniqueTypes(types []string) []string {
	out := make([]string, 0, len(types))
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
