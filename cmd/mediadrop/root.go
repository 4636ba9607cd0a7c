package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arzan03/mediadrop/internal/app"
	"github.com/arzan03/mediadrop/internal/config"
	"github.com/arzan03/mediadrop/internal/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "mediadrop",
	Short:        "Turn media sent over chat into short download codes",
	Version:      version,
	SilenceUsage: true,
	// Without a subcommand, run the server.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// loadApp reads the configuration and wires every service. The caller
// closes the app.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	log := logger.Init(cfg.IsDevelopment(), cfg.LogLevel, cfg.SentryDSN)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		return nil, err
	}
	return a, nil
}

// loadSharedConfig reads the configuration for commands that work on the
// codes of a running server. Those live in its process when the store is
// in memory, out of reach of this one.
func loadSharedConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := requireSharedStore(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func requireSharedStore(cfg *config.Config) error {
	if cfg.StoreBackend == config.BackendMemory {
		return fmt.Errorf("STORE_BACKEND=%s keeps codes inside the server process; "+
			"use GET or DELETE %s/api/uploads on the running server instead", cfg.StoreBackend, cfg.PublicURL)
	}
	return nil
}
