package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/etlguard/internal/api"
	"github.com/mschirtzinger/etlguard/internal/dashboard"
	"github.com/mschirtzinger/etlguard/internal/etl"
	"github.com/mschirtzinger/etlguard/internal/logging"
	"github.com/mschirtzinger/etlguard/internal/tasks"
	"github.com/mschirtzinger/etlguard/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ETL HTTP API",
	Long: `Start the HTTP API that triggers guarded ETL runs and controls sync switches.

Task configs under conf_dir are watched and reloaded when they change. With
dashboard.enabled, a WebSocket feed of ETL progress, lock contention and switch
changes is served on dashboard.port.

Routes:
  POST /etl/{type}/{key}/{task}?params=a;b
  POST /etl/{type}/{task}?params=a;b
  POST /etl/sync/{type}/{task}?max=N&step=M
  GET  /count/{type}/{key}/{task}
  GET  /count/{type}/{task}
  GET  /destinations
  PUT  /syncSwitch/{destination}/{on|off}
  GET  /syncSwitch/{destination}
  GET  /locks`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var dash *dashboard.Server
		observe := func(logs *logging.Output) etl.Observer {
			if !cfg.Dashboard.Enabled {
				return nil
			}
			dash = dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: logs.Logger("dashboard"),
			})
			return dashboard.NewHandler(dash, logs.Logger("dashboard"))
		}

		a, err := newApp(ctx, cfg, observe)
		if err != nil {
			return err
		}
		defer a.Close()

		if dash != nil {
			if err := dash.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer dash.Stop()
			fmt.Printf("%s Dashboard: ws://%s/ws\n", ui.RenderAccent("📊"), dash.GetAddr())
		}

		watcher, err := tasks.NewWatcher(a.tasks, cfg.ConfDir, &tasks.WatcherConfig{
			DebounceInterval: tasks.DefaultWatcherConfig().DebounceInterval,
			Logger:           a.logs.Logger("tasks"),
		})
		if err != nil {
			return fmt.Errorf("failed to create task watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			a.logs.Logger("tasks").Printf("WARNING: task configs will not be reloaded: %v", err)
		} else {
			defer watcher.Stop()
		}

		server := api.NewServer(a.svc, a.locks, &api.Config{
			Port:   cfg.Server.Port,
			Logger: a.logs.Logger("api"),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}

		fmt.Printf("%s etlguard listening on %s\n", ui.RenderPass("✓"), server.GetAddr())
		fmt.Printf("   Store: %s\n", cfg.Store.Driver)
		fmt.Printf("   Task configs: %s\n", cfg.ConfDir)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := server.Stop(cfg.Server.ShutdownTimeout); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
