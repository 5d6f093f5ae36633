package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Key addresses a value in the config file, such as server.auth.token.
type Key []string

// ParseKey splits a dotted key. Segments must be non-empty and free of
// whitespace.
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	key := Key(strings.Split(raw, "."))
	for _, seg := range key {
		switch {
		case seg == "":
			return nil, &ConfigError{Message: "config key " + raw + " has an empty segment"}
		case strings.ContainsFunc(seg, unicode.IsSpace):
			return nil, &ConfigError{Message: "config key segment " + seg + " contains whitespace"}
		}
	}
	return key, nil
}

func (k Key) String() string { return strings.Join(k, ".") }

// Document is the config file as an untyped YAML tree, edited by key and
// written back with Save. Edits keep keys the typed Config does not know.
type Document struct {
	path string
	root map[string]any
}

// OpenDocument reads path. A missing file opens as an empty document.
func OpenDocument(path string) (*Document, error) {
	doc := &Document{path: path, root: map[string]any{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &doc.root); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if doc.root == nil {
		doc.root = map[string]any{}
	}
	return doc, nil
}

// Path returns the file the document saves to.
func (d *Document) Path() string { return d.path }

// Get returns the value at key.
func (d *Document) Get(key Key) (any, bool) {
	var node any = d.root
	for _, seg := range key {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return node, true
}

// Set stores v at key, replacing any scalar met on the way with a map.
func (d *Document) Set(key Key, v any) {
	parent, _ := d.parent(key, true)
	parent[key[len(key)-1]] = v
}

// Unset deletes the value at key and reports whether it existed.
func (d *Document) Unset(key Key) bool {
	parent, ok := d.parent(key, false)
	if !ok {
		return false
	}
	leaf := key[len(key)-1]
	if _, ok := parent[leaf]; !ok {
		return false
	}
	delete(parent, leaf)
	return true
}

func (d *Document) parent(key Key, create bool) (map[string]any, bool) {
	node := d.root
	for _, seg := range key[:len(key)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			node[seg] = next
		}
		node = next
	}
	return node, true
}

// Save writes the document back, creating its directory if needed.
func (d *Document) Save() error {
	data, err := yaml.Marshal(d.root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(d.path, data, 0o600)
}
