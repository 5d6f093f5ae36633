// Package localfs is a plugin that imports repository content from a local
// directory and publishes repositories as directory trees with an index.
package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/soyeahso/depot/internal/plugin"
	"github.com/soyeahso/depot/internal/unit"
	"gopkg.in/yaml.v3"
)

// Name is the capability name for both kinds.
const Name = "localfs"

// ContentType is the content type both capabilities claim.
const ContentType = "file"

// IndexFile is written at the top of every published repository.
const IndexFile = "index.yaml"

// Entry is one file in a repository index.
type Entry struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

// Index lists the files of a published repository.
type Index struct {
	Repository  string    `yaml:"repository"`
	PublishedAt time.Time `yaml:"published_at"`
	Files       []Entry   `yaml:"files"`
}

// Program returns the code unit for this plugin.
func Program() unit.Program {
	return unit.Program{
		Use: Name,
		Capabilities: []unit.Capability{
			{Kind: plugin.KindImporter, Name: Name, Types: []string{ContentType}},
			{Kind: plugin.KindDistributor, Name: Name, Types: []string{ContentType}},
		},
		Sync:    Sync,
		Publish: Publish,
	}
}

// Sync scans the directory named by the "source" config key and reports
// what it holds.
func Sync(ctx context.Context, req *plugin.Request) (*plugin.Result, error) {
	source, ok := stringKey(req, "source")
	if !ok {
		return unit.Failed("config key %q is required", "source"), nil
	}
	entries, err := walk(ctx, source)
	if err != nil {
		return unit.Failed("scanning %s: %v", source, err), nil
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return &plugin.Result{
		Status: plugin.StatusSuccess,
		Summary: map[string]any{
			"repository": req.Repository,
			"files":      len(entries),
			"bytes":      total,
		},
	}, nil
}

// Publish copies the "source" directory into <target>/<repository> and
// writes an index of the copied files.
func Publish(ctx context.Context, req *plugin.Request) (*plugin.Result, error) {
	source, ok := stringKey(req, "source")
	if !ok {
		return unit.Failed("config key %q is required", "source"), nil
	}
	target, ok := stringKey(req, "target")
	if !ok {
		return unit.Failed("config key %q is required", "target"), nil
	}
	if !validRepository(req.Repository) {
		return unit.Failed("invalid repository name %q", req.Repository), nil
	}

	entries, err := walk(ctx, source)
	if err != nil {
		return unit.Failed("scanning %s: %v", source, err), nil
	}

	dest := filepath.Join(target, req.Repository)
	for _, e := range entries {
		if err := copyFile(filepath.Join(source, e.Path), filepath.Join(dest, e.Path)); err != nil {
			return nil, err
		}
	}

	idx := Index{Repository: req.Repository, PublishedAt: time.Now().UTC(), Files: entries}
	data, err := yaml.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("encoding index: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dest, IndexFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing index: %w", err)
	}

	return &plugin.Result{
		Status: plugin.StatusSuccess,
		Summary: map[string]any{
			"repository": req.Repository,
			"files":      len(entries),
			"path":       dest,
		},
	}, nil
}

// request config wins over options.
func stringKey(req *plugin.Request, key string) (string, bool) {
	if s, ok := req.Config[key].(string); ok && s != "" {
		return s, true
	}
	s, ok := req.Options[key].(string)
	return s, ok && s != ""
}

// walk lists the regular files under root, sorted by relative path.
func walk(ctx context.Context, root string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sum, size, err := digest(path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: filepath.ToSlash(rel), Size: size, SHA256: sum})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// validRepository accepts a single path element naming a directory below
// the target.
func validRepository(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return name == filepath.Base(name)
}
