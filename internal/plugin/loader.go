package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/soyeahso/depot/internal/hooks"
	"github.com/soyeahso/depot/internal/logging"
)

// View is the read-only, kind-agnostic surface of a registry.
type View interface {
	Kind() Kind
	Names() []string
	Types() []string
	Snapshot() Snapshot
	Describe(name string) (Description, error)
	DescribeType(typ string) (Description, error)
	Len() int
}

// Loader owns one registry per kind and is the single entry point the rest
// of the server uses to resolve plugins.
type Loader struct {
	importers    *Registry[Importer]
	distributors *Registry[Distributor]
	discoverer   *Discoverer
	hooks        *hooks.Manager // optional
	log          *logging.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHooks emits lifecycle events on hm.
func WithHooks(hm *hooks.Manager) LoaderOption {
	return func(l *Loader) {
		l.hooks = hm
	}
}

// WithDiscoverer replaces the default Discoverer.
func WithDiscoverer(d *Discoverer) LoaderOption {
	return func(l *Loader) {
		l.discoverer = d
	}
}

// NewLoader creates a Loader with empty registries.
func NewLoader(log *logging.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		importers:    NewRegistry[Importer](KindImporter, log),
		distributors: NewRegistry[Distributor](KindDistributor, log),
		log:          log.Sub("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.discoverer == nil {
		l.discoverer = NewDiscoverer(log)
	}
	return l
}

// Importers returns the importer registry.
func (l *Loader) Importers() *Registry[Importer] { return l.importers }

// Distributors returns the distributor registry.
func (l *Loader) Distributors() *Registry[Distributor] { return l.distributors }

// View returns the registry for kind.
func (l *Loader) View(kind Kind) (View, bool) {
	switch kind {
	case KindImporter:
		return l.importers, true
	case KindDistributor:
		return l.distributors, true
	default:
		return nil, false
	}
}

// AddImporter registers an importer. See Registry.Add.
func (l *Loader) AddImporter(name string, imp Importer, cfg Config, opts ...AddOption) error {
	return add(l, l.importers, name, imp, cfg, opts)
}

// RemoveImporter unregisters an importer. Unknown names are ignored.
func (l *Loader) RemoveImporter(name string) {
	l.remove(KindImporter, name)
}

// GetImporterByName resolves an importer by name.
func (l *Loader) GetImporterByName(name string) (Importer, Config, error) {
	return l.importers.GetByName(name)
}

// GetImporterByType resolves the importer that handles a content type.
func (l *Loader) GetImporterByType(typ string) (Importer, Config, error) {
	return l.importers.GetByType(typ)
}

// LoadedImporters returns name → config for every registered importer.
func (l *Loader) LoadedImporters() map[string]Config {
	return l.importers.Configs()
}

// LoadImportersFromPath discovers importer packages under root and registers
// them.
func (l *Loader) LoadImportersFromPath(ctx context.Context, root string) (*Report, error) {
	return load(ctx, l, l.importers, root, false, func(p *Package) Importer { return NewExternalImporter(p) })
}

// ReloadImportersFromPath atomically replaces the importers previously
// discovered under root with what is found there now.
func (l *Loader) ReloadImportersFromPath(ctx context.Context, root string) (*Report, error) {
	return load(ctx, l, l.importers, root, true, func(p *Package) Importer { return NewExternalImporter(p) })
}

// AddDistributor registers a distributor. See Registry.Add.
func (l *Loader) AddDistributor(name string, dist Distributor, cfg Config, opts ...AddOption) error {
	return add(l, l.distributors, name, dist, cfg, opts)
}

// RemoveDistributor unregisters a distributor. Unknown names are ignored.
func (l *Loader) RemoveDistributor(name string) {
	l.remove(KindDistributor, name)
}

// GetDistributorByName resolves a distributor by name.
func (l *Loader) GetDistributorByName(name string) (Distributor, Config, error) {
	return l.distributors.GetByName(name)
}

// GetDistributorByType resolves the distributor that handles a content type.
func (l *Loader) GetDistributorByType(typ string) (Distributor, Config, error) {
	return l.distributors.GetByType(typ)
}

// LoadedDistributors returns name → config for every registered distributor.
func (l *Loader) LoadedDistributors() map[string]Config {
	return l.distributors.Configs()
}

// LoadDistributorsFromPath discovers distributor packages under root and
// registers them.
func (l *Loader) LoadDistributorsFromPath(ctx context.Context, root string) (*Report, error) {
	return load(ctx, l, l.distributors, root, false, func(p *Package) Distributor { return NewExternalDistributor(p) })
}

// ReloadDistributorsFromPath atomically replaces the distributors previously
// discovered under root with what is found there now.
func (l *Loader) ReloadDistributorsFromPath(ctx context.Context, root string) (*Report, error) {
	return load(ctx, l, l.distributors, root, true, func(p *Package) Distributor { return NewExternalDistributor(p) })
}

// Remove unregisters name from the registry of kind and reports whether it
// was present.
func (l *Loader) Remove(kind Kind, name string) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("unknown plugin kind %q", kind)
	}
	return l.remove(kind, name), nil
}

// Reload rediscovers root into the registry of kind.
func (l *Loader) Reload(ctx context.Context, kind Kind, root string) (*Report, error) {
	switch kind {
	case KindImporter:
		return l.ReloadImportersFromPath(ctx, root)
	case KindDistributor:
		return l.ReloadDistributorsFromPath(ctx, root)
	default:
		return nil, fmt.Errorf("unknown plugin kind %q", kind)
	}
}

func (l *Loader) remove(kind Kind, name string) bool {
	var removed bool
	switch kind {
	case KindImporter:
		removed = l.importers.Remove(name)
	case KindDistributor:
		removed = l.distributors.Remove(name)
	}
	if removed {
		l.emit(context.Background(), hooks.EventPluginRemoved, map[string]any{
			"kind": string(kind),
			"name": name,
		})
	}
	return removed
}

func (l *Loader) emit(ctx context.Context, event string, data map[string]any) {
	if l.hooks != nil {
		l.hooks.Emit(ctx, event, data)
	}
}

func add[T Capability](l *Loader, reg *Registry[T], name string, impl T, cfg Config, opts []AddOption) error {
	if err := reg.Add(name, impl, cfg, opts...); err != nil {
		return err
	}

	event := hooks.EventPluginAdded
	if !cfg.Enabled() {
		event = hooks.EventPluginSkipped
	}
	l.emit(context.Background(), event, map[string]any{
		"kind": string(reg.Kind()),
		"name": name,
	})
	return nil
}

func load[T Capability](ctx context.Context, l *Loader, reg *Registry[T], root string, replace bool, build func(*Package) T) (*Report, error) {
	kind := reg.Kind()
	root = filepath.Clean(root)
	report := newReport(kind, root)

	l.emit(ctx, hooks.EventDiscoveryStarted, map[string]any{
		"kind": string(kind),
		"root": root,
		"id":   report.ID,
	})

	scan, err := l.discoverer.Scan(ctx, root, kind)
	if err != nil {
		return nil, err
	}
	report.Failures = append(report.Failures, scan.Failures...)

	var enabled []*Package
	for _, pkg := range scan.Packages {
		if !pkg.Config.Enabled() {
			report.Skipped = append(report.Skipped, pkg.Metadata.Name)
			l.emit(ctx, hooks.EventPluginSkipped, map[string]any{
				"kind": string(kind),
				"name": pkg.Metadata.Name,
				"dir":  pkg.Dir,
			})
			continue
		}
		enabled = append(enabled, pkg)
	}

	if replace {
		recs := make([]*Record[T], len(enabled))
		for i, pkg := range enabled {
			recs[i] = &Record[T]{
				Name:   pkg.Metadata.Name,
				Plugin: build(pkg),
				Config: pkg.Config,
				Types:  pkg.Metadata.Types,
				Dir:    pkg.Dir,
			}
		}
		// A package whose metadata call only timed out keeps its current registration.
		for _, f := range scan.Failures {
			if !errors.Is(f, context.DeadlineExceeded) {
				continue
			}
			if prev, ok := reg.fromDir(root, f.Candidate); ok {
				l.log.Warn().Str("candidate", f.Candidate).Str("name", prev.Name).Msg("metadata call timed out, keeping registered plugin")
				recs = append(recs, prev)
			}
		}
		removed, errs := reg.ReplaceSource(root, recs)
		for i, pkg := range enabled {
			if errs[i] != nil {
				l.log.Warn().Err(errs[i]).Str("candidate", pkg.Dir).Msg("plugin registration rejected")
				report.Failures = append(report.Failures, Failure{Candidate: pkg.Dir, Err: errs[i]})
				continue
			}
			report.Loaded = append(report.Loaded, pkg.Metadata.Name)
		}
		for i := len(enabled); i < len(recs); i++ {
			if errs[i] != nil {
				l.log.Warn().Err(errs[i]).Str("candidate", recs[i].Dir).Msg("kept plugin could not be re-registered")
			}
		}
		report.Removed = removed
		for _, name := range removed {
			l.emit(ctx, hooks.EventPluginRemoved, map[string]any{
				"kind": string(kind),
				"name": name,
			})
		}
	} else {
		for _, pkg := range enabled {
			err := reg.Add(pkg.Metadata.Name, build(pkg), pkg.Config,
				WithTypes(pkg.Metadata.Types...),
				WithSource(root),
				WithDir(pkg.Dir),
			)
			if err != nil {
				l.log.Warn().Err(err).Str("candidate", pkg.Dir).Msg("plugin registration rejected")
				report.Failures = append(report.Failures, Failure{Candidate: pkg.Dir, Err: err})
				continue
			}
			report.Loaded = append(report.Loaded, pkg.Metadata.Name)
		}
	}

	for _, name := range report.Loaded {
		l.emit(ctx, hooks.EventPluginAdded, map[string]any{
			"kind": string(kind),
			"name": name,
		})
	}
	for _, f := range report.Failures {
		l.emit(ctx, hooks.EventPluginLoadFailed, map[string]any{
			"kind":      string(kind),
			"candidate": f.Candidate,
			"error":     f.Err.Error(),
		})
	}

	report.FinishedAt = time.Now().UTC()

	l.log.Info().
		Str("kind", string(kind)).
		Str("root", root).
		Int("loaded", len(report.Loaded)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failures)).
		Dur("took", report.Duration()).
		Msg("plugins discovered")

	l.emit(ctx, hooks.EventDiscoveryFinished, map[string]any{
		"kind":    string(kind),
		"root":    root,
		"id":      report.ID,
		"loaded":  len(report.Loaded),
		"skipped": len(report.Skipped),
		"failed":  len(report.Failures),
	})
	return report, nil
}
