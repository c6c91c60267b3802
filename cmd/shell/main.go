package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/config"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Build information injected via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadOrDefault()
	cmd := &cobra.Command{
		Use:           "shell [protocol-link]",
		Short:         "Desktop shell for the API client",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := config.BindFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		if err := flags.Apply(cfg, exe, args); err != nil {
			return err
		}
		cfg.App.Version = version
		return runController(cmd.Context(), cfg)
	}
	cmd.AddCommand(newWorkerCmd())
	return cmd
}

func runController(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return err
	}

	logger.Info("Starting API client shell",
		zap.String("version", cfg.App.Version),
		zap.String("home", cfg.App.Home),
		zap.String("level", cfg.Logging.Level))

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		_ = logger.Sync()
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Shell stopped with an error", zap.Error(err))
		return err
	}
	logger.Info("Shell stopped")
	return nil
}
