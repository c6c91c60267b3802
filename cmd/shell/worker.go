package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/config"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/apiclient-shell/internal/protocol"
	"github.com/GriffinCanCode/apiclient-shell/internal/proxy"
	"github.com/GriffinCanCode/apiclient-shell/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Descriptors the controller hands to the worker.
const (
	commandFD = 3
	eventFD   = 4
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run the proxy worker",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			commands := os.NewFile(commandFD, "commands")
			events := os.NewFile(eventFD, "events")
			if _, err := commands.Stat(); err != nil {
				return fmt.Errorf("worker descriptors are missing, the worker must be started by the shell: %w", err)
			}
			conn := protocol.NewConn(commands, events, workerClosers{commands, events})
			return runWorker(cmd.Context(), cfg, conn)
		},
	}
}

func runWorker(ctx context.Context, cfg *config.Config, conn *protocol.Conn) error {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer conn.Close()

	client, err := proxy.NewClient(proxy.Config{
		Timeout:      cfg.Worker.HTTPTimeout,
		UserAgent:    proxy.DefaultConfig().UserAgent,
		RateLimit:    cfg.Worker.RateLimit,
		StoreRetries: cfg.Worker.StoreRetries,
		Proxy: proxy.ProxyConfig{
			URL:      cfg.Proxy.URL,
			Username: cfg.Proxy.Username,
			Password: cfg.Proxy.Password,
			System:   cfg.Proxy.SystemSettings,
		},
	}, logger.Named("http"))
	if err != nil {
		logger.Error("Invalid proxy configuration", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// unblocks Serve
		_ = conn.Close()
	}()

	tracer := tracing.New("worker", logger)
	defer tracer.Close()

	d := worker.NewDispatcher(logger, proxy.NewService(client, logger).Methods()).WithTracer(tracer)
	logger.Debug("Worker serving")
	if err := d.Serve(ctx, conn); err != nil && ctx.Err() == nil {
		logger.Error("Worker stopped with an error", zap.Error(err))
		return err
	}
	return nil
}

type workerClosers []*os.File

func (w workerClosers) Close() error {
	var first error
	for _, f := range w {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
