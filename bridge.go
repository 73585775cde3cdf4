package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testexplorer/bridge/exitcodes"
	"github.com/testexplorer/bridge/logging"
	"github.com/testexplorer/bridge/metrics"
	"github.com/testexplorer/bridge/pipe"
	"github.com/testexplorer/bridge/runner"
	"github.com/testexplorer/bridge/types"
	"github.com/testexplorer/bridge/ui"
)

// Bridge drives discovery and execution runs for every configured
// workspace root. It implements the service lifecycle used by cmd.
type Bridge struct {
	ctx    context.Context
	config *Config
	vers   string

	launcher   *runner.Launcher
	server     *pipe.Server
	processors *Processors
	payloadLog *logging.PayloadLogger
	resolvers  []*Resolver

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// metricsSink reports discovery completion into the metrics surface.
// The processors already count passes; this sink exists so collaborators
// get the "discovery finished" signal the explorer refresh hangs off.
type metricsSink struct {
	log log.Logger
}

func (s metricsSink) DiscoveryFinished(workspace string, status types.PayloadStatus) {
	s.log.Info("Discovery finished", "workspace", workspace, "status", status)
}

// New wires the launcher, the frame router and one resolver per
// workspace root.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Bridge, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating bridge with config",
		"workspaces", config.Workspaces,
		"runner", config.RunnerCommand,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"coverage", config.Coverage)

	launcher, err := runner.NewLauncher(runner.Config{
		Command: config.RunnerCommand,
		PipeDir: config.PipeDir,
		Log:     config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create launcher: %w", err)
	}

	payloadLog, err := logging.NewPayloadLogger(config.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create payload logger: %w", err)
	}

	processors := NewProcessors(config.Log)
	sink := metricsSink{log: config.Log}

	resolvers := make([]*Resolver, 0, len(config.Workspaces))
	for _, workspace := range config.Workspaces {
		resolvers = append(resolvers, NewResolver(workspace, config.Log, processors, sink, payloadLog))
	}

	return &Bridge{
		ctx:              ctx,
		config:           config,
		vers:             version,
		launcher:         launcher,
		server:           pipe.NewServer(config.Log),
		processors:       processors,
		payloadLog:       payloadLog,
		resolvers:        resolvers,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Resolvers exposes the per-workspace resolvers, mainly for tests and
// for the orchestration layer's queries.
func (b *Bridge) Resolvers() []*Resolver {
	return b.resolvers
}

// Start runs one pass immediately and, in continuous mode, keeps
// running at the configured interval until stopped.
func (b *Bridge) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			b.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	b.ctx = ctx
	b.done = make(chan struct{})
	b.running.Store(true)

	if b.config.RunOnce {
		b.config.Log.Info("Starting test bridge in run-once mode")
	} else {
		b.config.Log.Info("Starting test bridge in continuous mode", "interval", b.config.RunInterval)
	}

	err := b.runPass()
	if err != nil {
		return err
	}

	if b.config.RunOnce {
		b.running.Store(false)
		go b.shutdownCallback(nil)
		return nil
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-time.After(b.config.RunInterval):
				if !b.running.Load() {
					return
				}
				b.config.Log.Info("Running periodic pass")
				if err := b.runPass(); err != nil {
					b.config.Log.Error("Periodic pass failed", "error", err)
					metrics.RecordErrorDetails("periodic_pass", err)
				}
			case <-b.done:
				return
			case <-ctx.Done():
				b.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// Stop halts periodic runs and releases resources.
func (b *Bridge) Stop(ctx context.Context) error {
	if !b.running.Load() {
		return nil
	}
	b.running.Store(false)
	close(b.done)

	waited := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	return b.payloadLog.Close()
}

// Stopped reports whether the bridge has been stopped.
func (b *Bridge) Stopped() bool {
	return !b.running.Load()
}

// runPass runs discovery (and execution, unless disabled) across all
// workspace roots and renders the outcome. Failed or errored tests make
// the pass return a TestFailureError so the CLI can exit 1.
func (b *Bridge) runPass() error {
	failed := 0
	for _, resolver := range b.resolvers {
		run := types.NewRecordedRun()

		args := append([]string(nil), b.config.RunnerArgs...)
		if err := resolver.Discover(b.ctx, b.launcher, b.server, args, run); err != nil {
			if errors.Is(err, pipe.ErrCanceled) {
				return nil
			}
			return NewRuntimeError(fmt.Errorf("discovery failed for %s: %w", resolver.Workspace(), err))
		}

		if !b.config.DiscoverOnly {
			if b.config.Coverage {
				args = append(args, "--coverage")
			}
			if err := resolver.Execute(b.ctx, b.launcher, b.server, args, nil, run); err != nil {
				if errors.Is(err, pipe.ErrCanceled) {
					return nil
				}
				return NewRuntimeError(fmt.Errorf("execution failed for %s: %w", resolver.Workspace(), err))
			}
		}

		ui.RenderTree(os.Stdout, resolver.Workspace(), resolver.Tree(), run)
		ui.RenderSummary(os.Stdout, resolver.Workspace(), run)

		failed += run.CountByState(types.StateFailed) + run.CountByState(types.StateErrored)
	}

	if failed > 0 {
		return NewTestFailureError(fmt.Sprintf("%d test(s) failed or errored", failed))
	}
	return nil
}
