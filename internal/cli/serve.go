package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/soyeahso/depot/internal/config"
	"github.com/soyeahso/depot/internal/gateway"
	"github.com/soyeahso/depot/internal/hooks"
	"github.com/soyeahso/depot/internal/logging"
	"github.com/soyeahso/depot/internal/plugin"
	"github.com/soyeahso/depot/internal/store"
	"github.com/soyeahso/depot/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Discover plugins and start the introspection server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// The flag wins over the file for the log level.
			if logLevel == "" {
				log = logging.NewWithStyle(os.Stderr, cfg.Logging.Level, cfg.Logging.ConsoleStyle)
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			hookMgr := hooks.NewManager(log)
			loader := newLoader(cfg, hookMgr)

			var runs *store.RunStore
			if cfg.Store.Recording() {
				db, err := store.Open(cfg.Store.Path, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				runs = store.NewRunStore(db)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			roots := pluginRoots(cfg)
			for _, kind := range plugin.Kinds {
				report, err := loadKind(ctx, loader, kind, roots[kind], false)
				if err != nil {
					return fmt.Errorf("loading %s: %w", kind.Plural(), err)
				}
				recordRun(ctx, runs, report)
			}

			go reloadOnHangup(ctx, loader, roots, runs)

			opts := []gateway.ServerOption{gateway.WithHooks(hookMgr)}
			for kind, root := range roots {
				opts = append(opts, gateway.WithRoot(kind, root))
			}
			if runs != nil {
				opts = append(opts, gateway.WithRuns(runs))
			}

			srv := gateway.New(cfg.Server, loader, log, opts...)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (overrides config)")
	cmd.Flags().StringVar(&bind, "bind", "", "bind mode: loopback|lan|custom")
	return cmd
}

// newLoader builds a Loader whose discoverer honors the plugins config.
func newLoader(cfg config.Config, hm *hooks.Manager) *plugin.Loader {
	dopts := []plugin.DiscoveryOption{
		plugin.WithProbeTimeout(cfg.Plugins.ProbeTimeout),
		plugin.WithConcurrency(cfg.Plugins.Concurrency),
		plugin.WithHostVersion(version.Version),
	}
	for _, kind := range plugin.Kinds {
		if o := cfg.Overrides(string(kind)); len(o) > 0 {
			dopts = append(dopts, plugin.WithOverrides(kind, o))
		}
	}

	lopts := []plugin.LoaderOption{plugin.WithDiscoverer(plugin.NewDiscoverer(log, dopts...))}
	if hm != nil {
		lopts = append(lopts, plugin.WithHooks(hm))
	}
	return plugin.NewLoader(log, lopts...)
}

func pluginRoots(cfg config.Config) map[plugin.Kind]string {
	return map[plugin.Kind]string{
		plugin.KindImporter:    cfg.Plugins.Importers,
		plugin.KindDistributor: cfg.Plugins.Distributors,
	}
}

func loadKind(ctx context.Context, loader *plugin.Loader, kind plugin.Kind, root string, replace bool) (*plugin.Report, error) {
	if replace {
		return loader.Reload(ctx, kind, root)
	}
	switch kind {
	case plugin.KindImporter:
		return loader.LoadImportersFromPath(ctx, root)
	default:
		return loader.LoadDistributorsFromPath(ctx, root)
	}
}

func recordRun(ctx context.Context, runs *store.RunStore, report *plugin.Report) {
	if runs == nil || report == nil {
		return
	}
	if err := runs.Record(ctx, report); err != nil {
		log.Warn().Err(err).Str("id", report.ID).Msg("failed to record discovery run")
	}
}

// reloadOnHangup rediscovers every root each time the process gets SIGHUP.
func reloadOnHangup(ctx context.Context, loader *plugin.Loader, roots map[plugin.Kind]string, runs *store.RunStore) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info().Msg("SIGHUP received, reloading plugins")
			for _, kind := range plugin.Kinds {
				report, err := loadKind(ctx, loader, kind, roots[kind], true)
				if err != nil {
					log.Error().Err(err).Str("kind", string(kind)).Msg("reload failed")
					continue
				}
				recordRun(ctx, runs, report)
			}
		}
	}
}
