package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/depot/internal/logging"
)

// MarkerFile marks a directory as a plugin package.
const MarkerFile = "plugin.yaml"

const (
	DefaultProbeTimeout = 10 * time.Second
	DefaultConcurrency  = 4
)

// sidecarExts are tried in order for <name><ext> next to the code unit.
var sidecarExts = []string{".conf", ".json", ".yaml", ".yml"}

// Manifest is the optional content of the package marker.
type Manifest struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	// Requires is a semver constraint on the host, e.g. ">= 1.2, < 2".
	Requires string `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// Package is a candidate that loaded cleanly and is ready for registration.
type Package struct {
	Kind       Kind
	Dir        string
	Unit       string
	Manifest   Manifest
	Metadata   Metadata // Name is lower-cased
	Config     Config
	ConfigFile string // empty when no sidecar was found
}

// Failure is a candidate that could not be loaded or registered.
type Failure struct {
	Candidate string
	Err       error
}

func (f Failure) Error() string { return f.Err.Error() }

func (f Failure) Unwrap() error { return f.Err }

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Candidate string `json:"candidate"`
		Error     string `json:"error"`
	}{f.Candidate, f.Err.Error()})
}

// ScanResult holds the packages found under one root, in directory order.
type ScanResult struct {
	Kind     Kind
	Root     string
	Packages []*Package
	Failures []Failure
}

// DiscoveryOption configures a Discoverer.
type DiscoveryOption func(*Discoverer)

// WithProbeTimeout bounds how long a code unit may take to answer metadata.
func WithProbeTimeout(d time.Duration) DiscoveryOption {
	return func(dd *Discoverer) {
		dd.timeout = d
	}
}

// WithConcurrency bounds how many candidates are probed at once.
func WithConcurrency(n int) DiscoveryOption {
	return func(dd *Discoverer) {
		if n > 0 {
			dd.concurrency = n
		}
	}
}

// WithOverrides merges server-supplied settings over each plugin's sidecar
// configuration, keyed by lower-cased plugin name.
func WithOverrides(kind Kind, overrides map[string]map[string]any) DiscoveryOption {
	return func(dd *Discoverer) {
		folded := make(map[string]map[string]any, len(overrides))
		for name, settings := range overrides {
			folded[strings.ToLower(name)] = settings
		}
		dd.overrides[kind] = folded
	}
}

// WithHostVersion enables the manifest "requires" check against v. A
// version that is not valid semver (such as "dev") disables the check.
func WithHostVersion(v string) DiscoveryOption {
	return func(dd *Discoverer) {
		if hv, err := semver.NewVersion(v); err == nil {
			dd.host = hv
		}
	}
}

// Discoverer scans plugin roots for packages.
type Discoverer struct {
	timeout     time.Duration
	concurrency int
	overrides   map[Kind]map[string]map[string]any
	host        *semver.Version // nil skips compatibility checks
	log         *logging.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(log *logging.Logger, opts ...DiscoveryOption) *Discoverer {
	d := &Discoverer{
		timeout:     DefaultProbeTimeout,
		concurrency: DefaultConcurrency,
		overrides:   make(map[Kind]map[string]map[string]any),
		log:         log.Sub("discovery"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Scan loads every immediate subdirectory of root as a package of the given
// kind. A broken candidate becomes a Failure and never stops the scan. A
// missing root yields an empty result. If ctx ends before the scan
// completes, Scan returns ctx.Err() and no result.
func (d *Discoverer) Scan(ctx context.Context, root string, kind Kind) (*ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &ScanResult{Kind: kind, Root: root}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.log.Warn().Str("root", root).Str("kind", string(kind)).Msg("plugin root does not exist")
			return res, nil
		}
		return nil, fmt.Errorf("reading plugin root %s: %w", root, err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(root, entry.Name()))
	}

	pkgs := make([]*Package, len(dirs))
	errs := make([]error, len(dirs))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			pkgs[i], errs[i] = d.loadPackage(ctx, dir, kind)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, dir := range dirs {
		if errs[i] != nil {
			d.log.Warn().Err(errs[i]).Str("candidate", dir).Msg("skipping plugin package")
			res.Failures = append(res.Failures, Failure{Candidate: dir, Err: errs[i]})
			continue
		}
		res.Packages = append(res.Packages, pkgs[i])
	}

	d.log.Debug().
		Str("root", root).
		Str("kind", string(kind)).
		Int("candidates", len(dirs)).
		Int("failures", len(res.Failures)).
		Msg("scan complete")
	return res, nil
}

func (d *Discoverer) loadPackage(ctx context.Context, dir string, kind Kind) (*Package, error) {
	fail := func(reason string, err error) error {
		return &PackageError{Kind: kind, Dir: dir, Reason: reason, Err: err}
	}

	manifest, err := readManifest(filepath.Join(dir, MarkerFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fail("missing package marker "+MarkerFile, nil)
		}
		return nil, fail("reading package marker", err)
	}
	if err := d.checkCompatible(manifest); err != nil {
		return nil, fail("incompatible package", err)
	}

	unit := filepath.Join(dir, string(kind))
	info, err := os.Stat(unit)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fail("missing code unit "+string(kind), nil)
	case err != nil:
		return nil, fail("inspecting code unit", err)
	case info.IsDir():
		return nil, fail("code unit is a directory", nil)
	case info.Mode().Perm()&0o111 == 0:
		return nil, fail("code unit is not executable", nil)
	}

	entry, err := probe(ctx, unit, kind, d.timeout)
	if err != nil {
		return nil, fail("loading code unit", err)
	}

	meta, err := normalizeMetadata(entry)
	if err != nil {
		return nil, fail("invalid metadata", err)
	}
	if !strings.EqualFold(meta.Name, filepath.Base(dir)) {
		d.log.Debug().Str("dir", dir).Str("name", meta.Name).Msg("package directory does not match plugin name")
	}

	cfg, cfgFile, err := readSidecar(dir, meta.Name)
	if err != nil {
		return nil, fail("reading configuration", err)
	}
	if ov, ok := d.overrides[kind][meta.Name]; ok {
		cfg = cfg.Merge(ov)
		if err := checkEnabled(cfg); err != nil {
			return nil, fail("applying configuration override", err)
		}
	}

	return &Package{
		Kind:       kind,
		Dir:        dir,
		Unit:       unit,
		Manifest:   manifest,
		Metadata:   meta,
		Config:     cfg,
		ConfigFile: cfgFile,
	}, nil
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing %s: %w", MarkerFile, err)
	}
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return m, fmt.Errorf("version %q: %w", m.Version, err)
		}
	}
	if m.Requires != "" {
		if _, err := semver.NewConstraint(m.Requires); err != nil {
			return m, fmt.Errorf("requires %q: %w", m.Requires, err)
		}
	}
	return m, nil
}

func (d *Discoverer) checkCompatible(m Manifest) error {
	if d.host == nil || m.Requires == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return err
	}
	if ok, errs := c.Validate(d.host); !ok {
		return fmt.Errorf("host version %s does not satisfy %q: %w", d.host, m.Requires, errors.Join(errs...))
	}
	return nil
}

func normalizeMetadata(entry capabilityEntry) (Metadata, error) {
	name := strings.ToLower(strings.TrimSpace(entry.Name))
	if name == "" {
		return Metadata{}, errors.New("name is empty")
	}
	for _, t := range entry.Types {
		if t == "" {
			return Metadata{}, fmt.Errorf("plugin %s declares an empty content type", name)
		}
	}
	return Metadata{Name: name, Types: uniqueTypes(entry.Types)}, nil
}

// readSidecar returns the plugin's configuration and the file it came from.
// Without a sidecar the default configuration is returned.
func readSidecar(dir, name string) (Config, string, error) {
	for _, ext := range sidecarExts {
		path := filepath.Join(dir, name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, "", err
		}

		cfg := Config{}
		if len(bytes.TrimSpace(data)) > 0 {
			switch ext {
			case ".yaml", ".yml":
				err = yaml.Unmarshal(data, &cfg)
			default:
				err = json.Unmarshal(data, &cfg)
			}
			if err != nil {
				return nil, "", fmt.Errorf("parsing %s: %w", path, err)
			}
			if cfg == nil {
				cfg = Config{}
			}
		}

		if _, ok := cfg[EnabledKey]; !ok {
			cfg[EnabledKey] = true
		}
		if err := checkEnabled(cfg); err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
		return cfg, path, nil
	}
	return DefaultConfig(), "", nil
}

func checkEnabled(cfg Config) error {
	v, ok := cfg[EnabledKey]
	if !ok {
		return nil
	}
	if _, isBool := v.(bool); !isBool {
		return fmt.Errorf("%q must be a boolean, got %T", EnabledKey, v)
	}
	return nil
}
