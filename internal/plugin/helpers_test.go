package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/soyeahso/depot/internal/logging"
	"github.com/stretchr/testify/require"
)

// stub implements both kinds in-process.
type stub struct {
	meta Metadata
}

func newStub(name string, types ...string) *stub {
	return &stub{meta: Metadata{Name: name, Types: types}}
}

func (s *stub) Metadata() Metadata { return s.meta }

func (s *stub) Sync(context.Context, *Request) (*Result, error) {
	return &Result{Status: StatusSuccess}, nil
}

func (s *stub) Publish(context.Context, *Request) (*Result, error) {
	return &Result{Status: StatusSuccess}, nil
}

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("code unit fixtures are shell scripts")
	}
}

// capsJSON renders the metadata output of a code unit exporting one capability.
func capsJSON(kind Kind, name string, types ...string) string {
	if types == nil {
		types = []string{}
	}
	data, _ := json.Marshal(describeOutput{Capabilities: []capabilityEntry{{Kind: kind, Name: name, Types: types}}})
	return string(data)
}

// unitScript answers metadata with caps and echoes operations back. The last
// request body is written next to the script as request.json.
func unitScript(caps string) string {
	return fmt.Sprintf(`#!/bin/sh
case "$1" in
metadata)
	cat <<'JSON'
%s
JSON
	;;
sync|publish)
	cat > "$(dirname "$0")/request.json"
	printf '{"status":"success","summary":{"op":"%%s"}}' "$1"
	;;
*)
	echo "unknown operation $1" >&2
	exit 2
	;;
esac
`, caps)
}

// writePackage lays out root/dir as a package of kind with the given code
// unit script and extra files. An empty script omits the unit.
func writePackage(t *testing.T, root, dir string, kind Kind, script string, files map[string]string) string {
	t.Helper()
	pkg := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	if _, ok := files[MarkerFile]; !ok {
		require.NoError(t, os.WriteFile(filepath.Join(pkg, MarkerFile), nil, 0o644))
	}
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(pkg, string(kind)), []byte(script), 0o755))
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(pkg, name), []byte(content), 0o644))
	}
	return pkg
}

// writePlugin writes a well-formed package exporting name and types.
func writePlugin(t *testing.T, root string, kind Kind, name string, types ...string) string {
	t.Helper()
	return writePackage(t, root, name, kind, unitScript(capsJSON(kind, name, types...)), nil)
}
