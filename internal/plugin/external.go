package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Code unit protocol. A package's executable answers:
//
//	<unit> metadata            → {"capabilities": [{"kind": "...", "name": "...", "types": [...]}]}
//	<unit> sync|publish        ← stdin  {"repository": "...", "config": {...}, "options": {...}}
//	                           → stdout {"status": "success|failed", "summary": {...}, "error": "..."}
//
// The metadata subcommand must not depend on configuration or prior state.
const (
	metadataCommand = "metadata"
	syncCommand     = "sync"
	publishCommand  = "publish"
)

type describeOutput struct {
	Capabilities []capabilityEntry `json:"capabilities"`
}

type capabilityEntry struct {
	Kind  Kind     `json:"kind"`
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

// probe runs the unit's metadata subcommand and returns the single
// capability of the requested kind.
func probe(ctx context.Context, unit string, kind Kind, timeout time.Duration) (capabilityEntry, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, unit, metadataCommand) //nolint:gosec // unit path comes from the plugin root
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return capabilityEntry{}, fmt.Errorf("running %s %s: %w", unit, metadataCommand, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return capabilityEntry{}, fmt.Errorf("running %s %s: %w: %s", unit, metadataCommand, err, msg)
		}
		return capabilityEntry{}, fmt.Errorf("running %s %s: %w", unit, metadataCommand, err)
	}

	var desc describeOutput
	if err := json.Unmarshal(out, &desc); err != nil {
		return capabilityEntry{}, fmt.Errorf("parsing metadata output: %w", err)
	}

	var matches []capabilityEntry
	for _, c := range desc.Capabilities {
		if c.Kind == kind {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return capabilityEntry{}, fmt.Errorf("no %s capability exported", kind)
	case 1:
		return matches[0], nil
	default:
		return capabilityEntry{}, fmt.Errorf("%d %s capabilities exported, want exactly one", len(matches), kind)
	}
}

// external is an out-of-process capability backed by a package's code unit.
type external struct {
	unit string
	meta Metadata
}

func (e *external) Metadata() Metadata {
	return Metadata{Name: e.meta.Name, Types: append([]string(nil), e.meta.Types...)}
}

// Path returns the code unit executable.
func (e *external) Path() string { return e.unit }

func (e *external) invoke(ctx context.Context, op string, req *Request) (*Result, error) {
	if req == nil {
		req = &Request{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.unit, op) //nolint:gosec // unit path comes from the plugin root
	cmd.Stdin = bytes.NewReader(body)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("running plugin %s: %w", e.meta.Name, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				Status: StatusFailed,
				Error:  fmt.Sprintf("plugin %s exited with code %d: %s", e.meta.Name, exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr))),
			}, nil
		}
		return nil, fmt.Errorf("running plugin %s: %w", e.meta.Name, err)
	}

	var res Result
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("parsing plugin %s response: %w", e.meta.Name, err)
	}
	return &res, nil
}

// ExternalImporter is an Importer implemented by a discovered package.
type ExternalImporter struct {
	external
}

// NewExternalImporter wraps the package's code unit as an Importer.
func NewExternalImporter(pkg *Package) *ExternalImporter {
	return &ExternalImporter{external{unit: pkg.Unit, meta: pkg.Metadata}}
}

// Sync runs the unit's sync operation.
func (p *ExternalImporter) Sync(ctx context.Context, req *Request) (*Result, error) {
	return p.invoke(ctx, syncCommand, req)
}

// ExternalDistributor is a Distributor implemented by a discovered package.
type ExternalDistributor struct {
	external
}

// NewExternalDistributor wraps the package's code unit as a Distributor.
func NewExternalDistributor(pkg *Package) *ExternalDistributor {
	return &ExternalDistributor{external{unit: pkg.Unit, meta: pkg.Metadata}}
}

// Publish runs the unit's publish operation.
func (p *ExternalDistributor) Publish(ctx context.Context, req *Request) (*Result, error) {
	return p.invoke(ctx, publishCommand, req)
}
