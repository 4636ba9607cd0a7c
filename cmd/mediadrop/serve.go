package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver and download server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Error("shutdown cleanup failed", "error", err)
		}
		sentry.Flush(2 * time.Second)
	}()

	a.RunBackground(ctx)
	srv := a.Server()

	errCh := make(chan error, 1)
	go func() {
		addr := net.JoinHostPort("", a.Cfg.Port)
		a.Logger.Info("server starting",
			"addr", addr,
			"store", a.Cfg.StoreBackend,
			"expiry", a.Policy.Describe(),
			"archive", a.Cfg.ArchiveEnabled,
		)
		errCh <- srv.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down", "timeout", a.Cfg.ShutdownTimeout)
	if err := srv.ShutdownWithTimeout(a.Cfg.ShutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.Logger.Info("server stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
