// Package plugin provides the capability registry and filesystem plugin
// loader used to route import and distribution work to pluggable
// implementations, selected by name or by declared content type.
package plugin

import "context"

// Kind is a category of pluggable capability. Each kind has its own
// independent registry namespace.
type Kind string

const (
	KindImporter    Kind = "importer"
	KindDistributor Kind = "distributor"
)

// Kinds lists all known plugin kinds.
var Kinds = []Kind{KindImporter, KindDistributor}

// Plural returns the collection name used for root directories and API
// paths ("importers", "distributors").
func (k Kind) Plural() string { return string(k) + "s" }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind accepts the singular or plural form of a kind name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if s == string(k) || s == k.Plural() {
			return k, true
		}
	}
	return "", false
}

// Metadata is the identity a capability declares about itself.
type Metadata struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

// Capability is the contract shared by all plugin kinds.
// Metadata must be answerable without any prior setup.
type Capability interface {
	Metadata() Metadata
}

// Importer brings content into the system.
type Importer interface {
	Capability

	// Sync pulls content for the repository described by req.
	Sync(ctx context.Context, req *Request) (*Result, error)
}

// Distributor publishes content to external systems.
type Distributor interface {
	Capability

	// Publish pushes the repository described by req to its destination.
	Publish(ctx context.Context, req *Request) (*Result, error)
}

// Request is the input handed to a capability operation.
type Request struct {
	Repository string         `json:"repository"`
	Config     Config         `json:"config,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

// Result statuses. A code unit that exits non-zero is reported as
// StatusFailed.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result is the outcome of a capability operation.
type Result struct {
	Status  string         `json:"status"`
	Summary map[string]any `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}
