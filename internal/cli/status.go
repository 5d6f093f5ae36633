package cli

import (
	"fmt"

	"github.com/soyeahso/depot/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show depot paths and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "depot %s (commit %s)\n\n", version.Version, version.ShortCommit())
			fmt.Fprintf(out, "Config:       %s\n", paths.Config)

			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:       error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Importers:    %s\n", cfg.Plugins.Importers)
			fmt.Fprintf(out, "Distributors: %s\n", cfg.Plugins.Distributors)
			fmt.Fprintf(out, "Discovery:    timeout=%s concurrency=%d\n", cfg.Plugins.ProbeTimeout, cfg.Plugins.Concurrency)

			auth := "none"
			if cfg.Server.Auth.Token != "" {
				auth = "token"
			}
			fmt.Fprintf(out, "Server:       port=%d bind=%s auth=%s\n", cfg.Server.Port, cfg.Server.Bind, auth)

			if cfg.Store.Recording() {
				fmt.Fprintf(out, "History:      %s\n", cfg.Store.Path)
			} else {
				fmt.Fprintln(out, "History:      disabled")
			}
			return nil
		},
	}
}
