package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"campuscal/internal/config"
	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/refresh"
	"campuscal/internal/store"
	"campuscal/internal/web"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "campuscal",
		Short:         "Campus events calendar: store, views and ICS feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./campuscal.yaml", "path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(layoutCmd())
	rootCmd.AddCommand(rruleCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		appLog.Error("command failed", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

func newFetcher(cfg *config.Config) *ics.Fetcher {
	return ics.NewFetcher(filepath.Join(cfg.DataDir, "ics-cache"), nil)
}

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled feed refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("effective config",
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"week_start", cfg.WeekStart,
				"events_file", cfg.EventsPath(),
				"refresh", cfg.RefreshCron,
				"ics_count", len(cfg.ICS),
				"basic_auth", cfg.BasicAuthEnabled(),
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st := store.New(cfg.EventsPath())
			rf := refresh.New(st, newFetcher(cfg), ics.FeedsFromConfig(cfg.ICS))
			if err := rf.Reload(); err != nil {
				return err
			}

			sched, err := rf.Schedule(ctx, cfg.RefreshCron)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				<-sched.Stop().Done()
			}()

			// First import runs in the background so the API is up immediately.
			go rf.Run(ctx)

			err = web.NewServer(cfg, st, rf).ListenAndServe(ctx)
			appLog.Info("campuscal exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}
