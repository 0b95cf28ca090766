package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/aide/internal/cloudsync"
	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/gateway"
	"github.com/soyeahso/aide/internal/logging"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the aide gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port  int
		bind  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			// The gateway logs the way the config file asks unless the
			// flag overrides the level.
			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			glog, closer, err := logging.NewWithOptions(logging.Options{
				Level: level,
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					glog.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Load raw config for RPC access
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			a, err := openApp(cfg, paths, glog)
			if err != nil {
				return err
			}
			defer a.Close()

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := []gateway.ServerOption{
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(a.hooks),
				gateway.WithMemory(a.memory),
				gateway.WithDispatcher(a.dispatcher),
			}
			if a.kv != nil {
				opts = append(opts, gateway.WithPrefs(a.kv))
			}
			if a.pool.HasCredential() {
				opts = append(opts, gateway.WithRunner(a.runner))
			} else {
				glog.Warn().Msg("no API key configured — chat.send will be unavailable")
			}

			if cfg.Sync.Enabled {
				syncer, err := cloudsync.New(ctx, cfg.Sync, glog)
				if err != nil {
					return err
				}
				syncer.AutoPush(ctx, a.hooks, a.memory.Snapshot)
				opts = append(opts, gateway.WithSyncer(syncer))
				glog.Info().Str("project", cfg.Sync.ProjectID).Msg("cloud sync enabled")
			}

			srv := gateway.New(a.cfg, glog, opts...)
			// A persona saved through prefs outranks the config file.
			srv.SetPersona(ctx, a.runner.Persona())

			if watch {
				go func() {
					if err := srv.WatchConfig(ctx, paths.Config); err != nil && ctx.Err() == nil {
						glog.Warn().Err(err).Msg("config watch stopped")
					}
				}()
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().BoolVar(&watch, "watch", true, "apply persona edits from the config file without restarting")

	return cmd
}
