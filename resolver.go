// Package bridge correlates an external test runner with an explorer
// tree across a process boundary: it owns the per-workspace identity
// index, routes framed runner payloads to the stateless processors and
// exposes the merged result state.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/testexplorer/bridge/coverage"
	"github.com/testexplorer/bridge/discovery"
	"github.com/testexplorer/bridge/execution"
	"github.com/testexplorer/bridge/index"
	"github.com/testexplorer/bridge/logging"
	"github.com/testexplorer/bridge/metrics"
	"github.com/testexplorer/bridge/pipe"
	"github.com/testexplorer/bridge/runner"
	"github.com/testexplorer/bridge/types"
)

// Processors bundles the three stateless payload processors. One shared
// set is constructed at startup and injected into every resolver; they
// carry no instance state, so sharing is safe.
type Processors struct {
	Discovery *discovery.Processor
	Execution *execution.Processor
	Coverage  *coverage.Processor
}

// NewProcessors constructs the shared processor set.
func NewProcessors(logger log.Logger) *Processors {
	return &Processors{
		Discovery: discovery.NewProcessor(logger),
		Execution: execution.NewProcessor(logger),
		Coverage:  coverage.NewProcessor(logger),
	}
}

// Resolver is the composition root for one workspace root. It owns the
// tree and the index for that workspace exclusively; resolvers for
// different workspaces are fully independent.
type Resolver struct {
	workspace  string
	log        log.Logger
	tree       *types.Tree
	idx        *index.Index
	processors *Processors
	sink       discovery.Sink
	payloadLog *logging.PayloadLogger
	tracer     trace.Tracer

	flights *flightGroup

	subtestTotals map[string]*execution.SubtestCounter
	lineDetails   map[string][]types.LineDetail
}

// NewResolver creates a resolver for a workspace root.
func NewResolver(workspace string, logger log.Logger, processors *Processors, sink discovery.Sink, payloadLog *logging.PayloadLogger) *Resolver {
	if sink == nil {
		sink = discovery.NopSink{}
	}
	return &Resolver{
		workspace:     workspace,
		log:           logger.New("workspace", workspace),
		tree:          types.NewTree(),
		idx:           index.New(logger),
		processors:    processors,
		sink:          sink,
		payloadLog:    payloadLog,
		tracer:        otel.Tracer("test bridge"),
		flights:       newFlightGroup(),
		subtestTotals: make(map[string]*execution.SubtestCounter),
		lineDetails:   make(map[string][]types.LineDetail),
	}
}

// Workspace returns the workspace root this resolver serves.
func (r *Resolver) Workspace() string {
	return r.workspace
}

// Tree returns the live explorer tree. Callers mutating it outside of
// discovery should follow up with Sweep.
func (r *Resolver) Tree() *types.Tree {
	return r.tree
}

// Index returns the identity index, for converting UI selections into
// runner-facing ids.
func (r *Resolver) Index() *index.Index {
	return r.idx
}

// SubtestTotals returns the pass/fail tally per parent run id gathered
// from the last execution pass.
func (r *Resolver) SubtestTotals() map[string]*execution.SubtestCounter {
	return r.subtestTotals
}

// LineDetails returns the detailed coverage sequence for a file, if the
// last coverage pass reported one.
func (r *Resolver) LineDetails(path string) ([]types.LineDetail, bool) {
	details, ok := r.lineDetails[path]
	return details, ok
}

// Sweep removes index entries whose nodes are no longer reachable.
// Intended after bulk tree mutation outside of discovery.
func (r *Resolver) Sweep() int {
	removed := r.idx.SweepStale(r.tree)
	metrics.RecordStaleSweep(r.workspace, removed)
	return removed
}

// RunIDsForSelection converts a UI node selection into runner-facing
// run ids. Unresolvable selections are dropped with a warning.
func (r *Resolver) RunIDsForSelection(uiIDs []string) []string {
	runIDs := make([]string, 0, len(uiIDs))
	for _, uiID := range uiIDs {
		runID, ok := r.idx.RunID(uiID)
		if !ok {
			r.log.Warn("No run id registered for selected node", "uiID", uiID)
			continue
		}
		runIDs = append(runIDs, runID)
	}
	return runIDs
}

// payloadProbe sniffs enough of a payload to classify it.
type payloadProbe struct {
	Coverage bool            `json:"coverage"`
	Tests    json.RawMessage `json:"tests"`
	Result   json.RawMessage `json:"result"`
	Error    json.RawMessage `json:"error"`
}

// HandleFrame decodes one framed payload and dispatches it to the
// matching processor. Payload kinds are distinguished by shape: the
// coverage flag, then a discovery tests tree, then an execution result
// map. Errors from the processors are returned to the caller; per-test
// failures inside a payload are not errors.
func (r *Resolver) HandleFrame(ctx context.Context, frame pipe.Frame, run types.TestRun) error {
	if r.payloadLog != nil {
		if err := r.payloadLog.Log(frame.UUID, frame.Body); err != nil {
			r.log.Warn("Failed to log raw payload", "error", err)
		}
	}

	var probe payloadProbe
	if err := json.Unmarshal(frame.Body, &probe); err != nil {
		metrics.RecordErrorDetails("payload_decode", err)
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	switch {
	case probe.Coverage:
		var payload types.CoveragePayload
		if err := json.Unmarshal(frame.Body, &payload); err != nil {
			return fmt.Errorf("failed to decode coverage payload: %w", err)
		}
		for path, details := range r.processors.Coverage.Process(&payload, run) {
			r.lineDetails[path] = details
		}
		return nil

	case probe.Tests != nil || isDiscoveryError(probe):
		var payload types.DiscoveryPayload
		if err := json.Unmarshal(frame.Body, &payload); err != nil {
			return fmt.Errorf("failed to decode discovery payload: %w", err)
		}
		return r.processors.Discovery.Process(ctx, &payload, r.tree, r.idx, r.workspace, r.sink)

	default:
		var payload types.ExecutionPayload
		if err := json.Unmarshal(frame.Body, &payload); err != nil {
			return fmt.Errorf("failed to decode execution payload: %w", err)
		}
		totals, err := r.processors.Execution.Process(&payload, run, r.idx, r.tree)
		for parent, counter := range totals {
			r.subtestTotals[parent] = counter
		}
		return err
	}
}

// isDiscoveryError reports whether a tests-less payload is a discovery
// error: discovery reports errors as a string array, execution as a
// single string.
func isDiscoveryError(probe payloadProbe) bool {
	if probe.Result != nil || probe.Error == nil {
		return false
	}
	var lines []string
	return json.Unmarshal(probe.Error, &lines) == nil
}

// frameHandler adapts HandleFrame to the pipe handler signature, with
// processor errors logged rather than propagated into the read loop.
func (r *Resolver) frameHandler(ctx context.Context, run types.TestRun) pipe.Handler {
	return func(frame pipe.Frame) {
		if err := r.HandleFrame(ctx, frame, run); err != nil {
			r.log.Error("Failed to process payload", "uuid", frame.UUID, "error", err)
			metrics.RecordErrorDetails("payload_process", err)
		}
	}
}

// Discover runs one discovery pass under the workspace's single-flight
// guard: a request arriving while one is in flight shares its
// completion instead of spawning a second runner.
func (r *Resolver) Discover(ctx context.Context, launcher *runner.Launcher, server *pipe.Server, args []string, run types.TestRun) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("discover %s", r.workspace))
	defer span.End()

	err, shared := r.flights.Do("discover", func() error {
		proc, err := launcher.Start(ctx, server, runner.StartOpts{
			Workspace: r.workspace,
			Args:      args,
		}, r.frameHandler(ctx, run))
		if err != nil {
			return err
		}
		return proc.Wait()
	})
	if shared {
		r.log.Debug("Joined in-flight discovery")
	}
	return err
}

// Execute runs the selected tests (all registered tests when uiIDs is
// empty) under the single-flight guard.
func (r *Resolver) Execute(ctx context.Context, launcher *runner.Launcher, server *pipe.Server, args []string, uiIDs []string, run types.TestRun) error {
	var runIDs []string
	if len(uiIDs) > 0 {
		runIDs = r.RunIDsForSelection(uiIDs)
	} else {
		for _, node := range r.tree.Cases() {
			if runID, ok := r.idx.RunID(node.ID); ok {
				runIDs = append(runIDs, runID)
			}
		}
	}
	if len(runIDs) == 0 {
		r.log.Warn("No runnable tests resolved for execution")
		return nil
	}

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("execute %s", r.workspace))
	defer span.End()

	err, shared := r.flights.Do("execute", func() error {
		proc, err := launcher.Start(ctx, server, runner.StartOpts{
			Workspace:  r.workspace,
			Args:       args,
			TestRunIDs: runIDs,
		}, r.frameHandler(ctx, run))
		if err != nil {
			return err
		}
		return proc.Wait()
	})
	if shared {
		r.log.Debug("Joined in-flight execution")
	}
	return err
}
