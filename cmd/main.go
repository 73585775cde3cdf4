package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/testexplorer/bridge"
	"github.com/testexplorer/bridge/flags"
	"github.com/testexplorer/bridge/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "test-bridge"
	app.Usage = "Test explorer bridge for external test runners"
	app.Description = "test-bridge discovers and runs tests through an external runner and mirrors the results into an explorer tree"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if bridge.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if bridge.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	// Start telemetry
	ctx, shutdown, err := setupTelemetry(context.Background(), app.Name, app.Version)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start healthz/metrics servers
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func setupTelemetry(ctx context.Context, name, version string) (context.Context, func(), error) {
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(name),
		otelconfig.WithServiceVersion(version),
	)
	if err != nil {
		return ctx, func() {}, err
	}
	return ctx, shutdown, nil
}

func run(ctx *cli.Context) error {
	level, err := log.LvlFromString(ctx.String(flags.LogLevel.Name))
	if err != nil {
		level = log.LevelInfo
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true))
	log.SetDefault(logger)

	cfg, err := bridge.NewConfig(ctx, logger)
	if err != nil {
		return bridge.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()

	shutdownErr := make(chan error, 1)
	app, err := bridge.New(runCtx, cfg, Version, func(err error) {
		shutdownErr <- err
	})
	if err != nil {
		return bridge.NewRuntimeError(fmt.Errorf("failed to create bridge: %w", err))
	}

	if err := app.Start(runCtx); err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-interrupt:
		logger.Info("Received signal, shutting down", "signal", sig)
		cancel()
	case err := <-shutdownErr:
		if err != nil {
			_ = app.Stop(ctx.Context)
			return err
		}
	case <-runCtx.Done():
	}

	return app.Stop(context.Background())
}
