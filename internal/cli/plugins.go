package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/soyeahso/depot/internal/plugin"
	"github.com/soyeahso/depot/internal/store"
	"github.com/spf13/cobra"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugin packages and discovery history",
	}

	cmd.AddCommand(newPluginsListCmd())
	cmd.AddCommand(newPluginsCheckCmd())
	cmd.AddCommand(newPluginsHistoryCmd())
	return cmd
}

// kindsFlag resolves a --kind value; empty means every kind.
func kindsFlag(raw string) ([]plugin.Kind, error) {
	if raw == "" {
		return plugin.Kinds, nil
	}
	k, ok := plugin.ParseKind(raw)
	if !ok {
		return nil, fmt.Errorf("unknown plugin kind %q (want importer or distributor)", raw)
	}
	return []plugin.Kind{k}, nil
}

func newPluginsListCmd() *cobra.Command {
	var (
		kindRaw string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover the configured plugin roots and list what would load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := kindsFlag(kindRaw)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loader := newLoader(cfg, nil)
			roots := pluginRoots(cfg)

			out := map[string]plugin.Snapshot{}
			var reports []*plugin.Report
			for _, kind := range kinds {
				report, err := loadKind(cmd.Context(), loader, kind, roots[kind], false)
				if err != nil {
					return err
				}
				reports = append(reports, report)
				v, _ := loader.View(kind)
				out[kind.Plural()] = v.Snapshot()
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Kind", "Name", "Types", "Source"})
			for _, kind := range kinds {
				v, _ := loader.View(kind)
				for _, name := range v.Names() {
					d, err := v.Describe(name)
					if err != nil {
						continue
					}
					t.AppendRow(table.Row{kind, d.Name, strings.Join(d.Types, ","), d.Source})
				}
			}
			t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
			t.Render()
			for _, r := range reports {
				printFailures(cmd.ErrOrStderr(), r.Failures)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kindRaw, "kind", "", "only list this kind (importer|distributor)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the registry snapshot as JSON")
	return cmd
}

func newPluginsCheckCmd() *cobra.Command {
	var kindRaw string

	cmd := &cobra.Command{
		Use:   "check <root>",
		Short: "Validate every plugin package under a directory without registering it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := plugin.ParseKind(kindRaw)
			if !ok {
				return fmt.Errorf("--kind must be importer or distributor, got %q", kindRaw)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loader := newLoader(cfg, nil)
			report, err := loader.Reload(cmd.Context(), kind, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range report.Loaded {
				fmt.Fprintf(out, "ok       %s\n", name)
			}
			for _, name := range report.Skipped {
				fmt.Fprintf(out, "disabled %s\n", name)
			}
			printFailures(out, report.Failures)

			if len(report.Failures) > 0 {
				return fmt.Errorf("%d of %d package(s) failed",
					len(report.Failures), len(report.Failures)+len(report.Loaded)+len(report.Skipped))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kindRaw, "kind", "", "plugin kind of the packages (importer|distributor)")
	cmd.MarkFlagRequired("kind")
	return cmd
}

func newPluginsHistoryCmd() *cobra.Command {
	var (
		kindRaw string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded discovery runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if kindRaw != "" {
				k, ok := plugin.ParseKind(kindRaw)
				if !ok {
					return fmt.Errorf("unknown plugin kind %q", kindRaw)
				}
				kind = string(k)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Store.Path, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			runs, err := store.NewRunStore(db).List(cmd.Context(), kind, limit)
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Started", "Kind", "Loaded", "Skipped", "Removed", "Failed", "Root"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Kind, len(r.Loaded), len(r.Skipped), len(r.Removed), len(r.Failures), r.Root,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&kindRaw, "kind", "", "only show this kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show (0 for all)")
	return cmd
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

func printFailures(w io.Writer, failures []plugin.Failure) {
	for _, f := range failures {
		fmt.Fprintf(w, "failed   %s: %v\n", f.Candidate, f.Err)
	}
}
