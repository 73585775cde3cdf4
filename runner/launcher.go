// Package runner spawns the external test runner subprocess and binds
// it to a host-side pipe listener for one logical run.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/testexplorer/bridge/pipe"
	"github.com/testexplorer/bridge/types"
)

// Environment variables that bind the subprocess to its host-side
// listener. The runner reads the run uuid from EnvRunUUID and derives
// its pipe endpoints from EnvRunPipe.
const (
	EnvRunUUID = "TEST_UUID"
	EnvRunPipe = "TEST_RUN_PIPE"
)

// Config configures a launcher shared by all runs.
type Config struct {
	Command []string // Runner argv; invocation args are appended per run
	PipeDir string   // Directory for FIFO pairs (unused on Windows)
	Log     log.Logger
}

// Launcher starts runner subprocesses. It is stateless apart from its
// configuration and safe for use from multiple resolvers.
type Launcher struct {
	cfg Config
}

// NewLauncher validates the configuration and creates a launcher.
func NewLauncher(cfg Config) (*Launcher, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("runner command cannot be empty")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return &Launcher{cfg: cfg}, nil
}

// StartOpts describes one logical run.
type StartOpts struct {
	Workspace  string   // Subprocess working directory
	Args       []string // Extra invocation args from the orchestration layer
	TestRunIDs []string // Run ids to execute; empty for a discovery pass
}

// Run is one in-flight runner subprocess bound to a pipe connection.
type Run struct {
	UUID string

	log        log.Logger
	cmd        *exec.Cmd
	conn       pipe.Conn
	connector  pipe.Connector
	server     *pipe.Server
	handler    pipe.Handler
	testRunIDs []string

	framesSeen atomic.Bool
	serveErr   error
	serveDone  chan struct{}
	closeOnce  sync.Once
}

// Start spawns the runner with cwd set to the workspace root and the
// uuid/pipe environment contract, waits for it to attach to the pipe,
// subscribes the handler for the run's uuid and begins the read loop.
// If execution ids are given they are framed and sent to the runner.
//
// Cancellation before the runner attaches fails with pipe.ErrCanceled
// and tears down the pipe resources.
func (l *Launcher) Start(ctx context.Context, server *pipe.Server, opts StartOpts, handler pipe.Handler) (*Run, error) {
	runUUID := uuid.New().String()

	connector, err := pipe.NewConnector(l.cfg.PipeDir, runUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}

	run := &Run{
		UUID:       runUUID,
		log:        l.cfg.Log,
		connector:  connector,
		server:     server,
		handler:    handler,
		testRunIDs: opts.TestRunIDs,
		serveDone:  make(chan struct{}),
	}

	args := append([]string(nil), l.cfg.Command[1:]...)
	args = append(args, opts.Args...)
	cmd := exec.CommandContext(ctx, l.cfg.Command[0], args...)
	cmd.Dir = opts.Workspace
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", EnvRunUUID, runUUID),
		fmt.Sprintf("%s=%s", EnvRunPipe, connector.Name()),
	)
	run.cmd = cmd

	l.cfg.Log.Debug("Starting test runner",
		"uuid", runUUID,
		"workspace", opts.Workspace,
		"pipe", connector.Name(),
		"tests", len(opts.TestRunIDs))

	if err := cmd.Start(); err != nil {
		_ = connector.Close()
		return nil, fmt.Errorf("failed to start runner: %w", err)
	}

	conn, err := connector.Connect(ctx)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = connector.Close()
		if errors.Is(err, pipe.ErrCanceled) {
			return nil, pipe.ErrCanceled
		}
		return nil, fmt.Errorf("runner never attached to pipe: %w", err)
	}
	run.conn = conn

	server.Subscribe(runUUID, func(frame pipe.Frame) {
		run.framesSeen.Store(true)
		handler(frame)
	})

	go func() {
		run.serveErr = server.Serve(ctx, conn)
		close(run.serveDone)
	}()

	if len(opts.TestRunIDs) > 0 {
		if err := pipe.SendTestIDs(conn, runUUID, opts.TestRunIDs); err != nil {
			run.teardown()
			return nil, err
		}
	}

	return run, nil
}

// Wait blocks until the subprocess exits and the read loop drains. A
// runner that dies without delivering a single frame surfaces as an
// error-status outcome for every requested test id instead of a silent
// hang or a dropped run.
func (r *Run) Wait() error {
	waitErr := r.cmd.Wait()
	<-r.serveDone
	r.teardown()

	if waitErr != nil && !r.framesSeen.Load() {
		r.log.Error("Test runner exited without reporting", "uuid", r.UUID, "error", waitErr)
		r.synthesizeCrashPayload(waitErr)
	}

	if r.serveErr != nil && !errors.Is(r.serveErr, pipe.ErrCanceled) {
		return r.serveErr
	}
	return nil
}

// teardown releases the pipe resources exactly once.
func (r *Run) teardown() {
	r.closeOnce.Do(func() {
		r.server.Unsubscribe(r.UUID)
		if r.conn != nil {
			_ = r.conn.Close()
		}
		_ = r.connector.Close()
	})
}

// synthesizeCrashPayload feeds the handler an error-status execution
// payload covering every test id this run was asked to execute.
func (r *Run) synthesizeCrashPayload(cause error) {
	message := fmt.Sprintf("test runner exited unexpectedly: %v", cause)
	payload := types.ExecutionPayload{
		Cwd:    r.cmd.Dir,
		Status: types.StatusError,
		Error:  message,
		Result: make(map[string]types.ExecutionResult, len(r.testRunIDs)),
	}
	for _, id := range r.testRunIDs {
		payload.Result[id] = types.ExecutionResult{
			Test:    id,
			Outcome: types.OutcomeError,
			Message: message,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("Failed to encode crash payload", "uuid", r.UUID, "error", err)
		return
	}
	r.handler(pipe.Frame{UUID: r.UUID, ContentType: "application/json", Body: body})
}
