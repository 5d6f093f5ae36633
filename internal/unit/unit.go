// Package unit builds plugin code unit executables: programs that answer
// the metadata, sync and publish subcommands the loader invokes.
package unit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/soyeahso/depot/internal/plugin"
	"github.com/spf13/cobra"
)

// Capability is one capability a code unit exports.
type Capability struct {
	Kind  plugin.Kind `json:"kind"`
	Name  string      `json:"name"`
	Types []string    `json:"types"`
}

// Operation handles one sync or publish request.
type Operation func(ctx context.Context, req *plugin.Request) (*plugin.Result, error)

// Program describes a code unit. Sync is required when an importer is
// exported and Publish when a distributor is.
type Program struct {
	Use          string
	Capabilities []Capability
	Sync         Operation
	Publish      Operation
}

// Command returns the cobra command tree for p.
func Command(p Program) *cobra.Command {
	root := &cobra.Command{
		Use:           p.Use,
		Short:         "depot plugin code unit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "metadata",
		Short: "Print exported capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), struct {
				Capabilities []Capability `json:"capabilities"`
			}{normalize(p.Capabilities)})
		},
	})
	if p.Sync != nil {
		root.AddCommand(operationCmd("sync", "Import content into a repository", p.Sync))
	}
	if p.Publish != nil {
		root.AddCommand(operationCmd("publish", "Publish a repository", p.Publish))
	}
	return root
}

// Run executes p against args with the given streams and returns the
// process exit code.
func Run(ctx context.Context, p Program, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := Command(p)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func operationCmd(use, short string, op Operation) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req plugin.Request
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&req); err != nil && err != io.EOF {
				return fmt.Errorf("decoding request: %w", err)
			}
			res, err := op(cmd.Context(), &req)
			if err != nil {
				return err
			}
			if res == nil {
				res = &plugin.Result{Status: plugin.StatusSuccess}
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

// Failed builds a result reporting a handled failure.
func Failed(format string, args ...any) *plugin.Result {
	return &plugin.Result{Status: plugin.StatusFailed, Error: fmt.Sprintf(format, args...)}
}

func normalize(caps []Capability) []Capability {
	out := make([]Capability, len(caps))
	for i, c := range caps {
		out[i] = c
		if out[i].Types == nil {
			out[i].Types = []string{}
		}
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}
