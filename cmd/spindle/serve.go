package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spindlehq/spindle/internal/config"
	"github.com/spindlehq/spindle/internal/db"
	"github.com/spindlehq/spindle/internal/engine"
	"github.com/spindlehq/spindle/internal/notify"
	"github.com/spindlehq/spindle/internal/scheduler"
	"github.com/spindlehq/spindle/internal/server"
	"github.com/spindlehq/spindle/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Spindle API server",
		Long:  "Serves the JSON API and runs the automation engine. Add --port to override the configured port.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "spindle.yaml", "path to Spindle config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	st := store.New(gormDB)
	pub, err := notify.New(notify.Opts{DB: gormDB, Config: cfg.Notify})
	if err != nil {
		return err
	}
	eng := engine.New(engine.Opts{
		Store:     st,
		Publisher: pub,
		MaxDepth:  cfg.Automation.MaxCascadeDepth,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	if cfg.Automation.Scheduler {
		sched := scheduler.New(scheduler.Opts{Store: st, Runner: eng})
		go sched.Run(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), "Scheduler running")
	}

	if port <= 0 {
		port = cfg.HTTP.Port
	}
	return server.Start(ctx, server.StartOpts{
		Store:  st,
		Engine: eng,
		Port:   port,
		Out:    cmd.OutOrStdout(),
	})
}

// loadConfigOrDefault reads the config file, falling back to built-in
// defaults (local sqlite) when the default path does not exist.
func loadConfigOrDefault(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == "spindle.yaml" {
		return config.Default(), nil
	}
	return nil, err
}
