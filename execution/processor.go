// Package execution drives explorer state transitions from runner
// execution payloads, including lazy creation of subtest nodes that are
// only discovered at run time.
package execution

import (
	"fmt"
	"sort"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/testexplorer/bridge/index"
	"github.com/testexplorer/bridge/metrics"
	"github.com/testexplorer/bridge/types"
)

// CorrelationError signals a protocol contract violation between runner
// and host: a subtest result arrived for a parent the index cannot
// resolve. This indicates a bug, not a retryable runtime condition, and
// is fatal to the batch that carried it.
type CorrelationError struct {
	ParentRunID string
	Key         string
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("subtest parent %q not found in index (result key %q)", e.ParentRunID, e.Key)
}

// SubtestCounter tracks the pass/fail tally of dynamically created
// subtest children under one parent.
type SubtestCounter struct {
	Passed int
	Failed int
}

// Processor applies execution payloads to a test run. It is stateless
// and shared across workspaces; it only reads the index's static
// tables, which remain discovery-owned.
type Processor struct {
	log log.Logger
}

// NewProcessor creates an execution processor.
func NewProcessor(logger log.Logger) *Processor {
	return &Processor{log: logger}
}

// Process walks the payload's result map and reports each entry's state
// on the run. Subtest results create child nodes under their parent on
// the fly; the returned map carries the running pass/fail tally per
// parent run id for aggregate reporting. Unknown outcome strings are
// ignored. Per-test failures never abort the batch; only a missing
// subtest parent does.
func (p *Processor) Process(payload *types.ExecutionPayload, run types.TestRun, idx *index.Index, tree *types.Tree) (map[string]*SubtestCounter, error) {
	counters := make(map[string]*SubtestCounter)
	if payload.Result == nil {
		if payload.Status == types.StatusError && payload.Error != "" {
			p.log.Error("Execution pass failed", "cwd", payload.Cwd, "error", payload.Error)
		}
		return counters, nil
	}

	for _, key := range sortedKeys(payload.Result) {
		entry := payload.Result[key]
		metrics.RecordOutcome(payload.Cwd, string(entry.Outcome))

		switch entry.Outcome {
		case types.OutcomeError:
			p.reportTerminal(run, idx, tree, key, entry, types.StateErrored)

		case types.OutcomeFailure, types.OutcomePassedUnexpected:
			p.reportTerminal(run, idx, tree, key, entry, types.StateFailed)

		case types.OutcomeSuccess, types.OutcomeExpectedFailure:
			if node, _ := idx.Lookup(key, tree); node != nil {
				run.Passed(node)
			} else {
				p.log.Warn("Dropping result for unknown test", "runID", key, "outcome", entry.Outcome)
			}

		case types.OutcomeSkipped:
			if node, _ := idx.Lookup(key, tree); node != nil {
				run.Skipped(node)
			} else {
				p.log.Warn("Dropping result for unknown test", "runID", key, "outcome", entry.Outcome)
			}

		case types.OutcomeSubtestSuccess, types.OutcomeSubtestFailure:
			if err := p.processSubtest(run, idx, tree, key, entry, counters); err != nil {
				return counters, err
			}

		default:
			// Forward compatible: newer runners may report outcomes this
			// host does not know yet.
			p.log.Debug("Ignoring unknown outcome", "runID", key, "outcome", entry.Outcome)
		}
	}

	return counters, nil
}

// reportTerminal handles the failed/errored legs: the message and
// traceback are attached as a located message when the node still has a
// resolvable source position.
func (p *Processor) reportTerminal(run types.TestRun, idx *index.Index, tree *types.Tree, key string, entry types.ExecutionResult, state types.TestState) {
	node, _ := idx.Lookup(key, tree)
	if node == nil {
		p.log.Warn("Dropping result for unknown test", "runID", key, "outcome", entry.Outcome)
		return
	}

	msg := buildMessage(node, entry)
	if state == types.StateErrored {
		run.Errored(node, msg)
	} else {
		run.Failed(node, msg)
	}
}

// processSubtest resolves the composite key, lazily creates the subtest
// child and reports its state. The first subtest result for a parent
// replaces any previously shown ad hoc children so a fresh set replaces
// a stale one.
func (p *Processor) processSubtest(run types.TestRun, idx *index.Index, tree *types.Tree, key string, entry types.ExecutionResult, counters map[string]*SubtestCounter) error {
	parentRunID, label := SplitSubtestKey(key, entry.Subtest)
	if parentRunID == "" {
		return &CorrelationError{ParentRunID: parentRunID, Key: key}
	}

	parent, _ := idx.Lookup(parentRunID, tree)
	if parent == nil {
		return &CorrelationError{ParentRunID: parentRunID, Key: key}
	}

	counter, seen := counters[parentRunID]
	if !seen {
		parent.ReplaceChildren(nil)
		counter = &SubtestCounter{}
		counters[parentRunID] = counter
	}

	child := types.NewCaseNode(key, label, parent.Path, 0)
	parent.AddChild(child)
	run.Started(child)

	if entry.Outcome == types.OutcomeSubtestSuccess {
		run.Passed(child)
		counter.Passed++
	} else {
		run.Failed(child, buildMessage(child, entry))
		counter.Failed++
	}
	return nil
}

// SplitSubtestKey decomposes a composite "parent[label]" result key.
// The payload's subtest field is the authoritative label when present;
// the key's bracketed suffix is the fallback. A key with no separator
// yields the key itself as the parent.
func SplitSubtestKey(key, subtestField string) (parentRunID, label string) {
	open := strings.Index(key, "[")
	if open > 0 && strings.HasSuffix(key, "]") {
		parentRunID = key[:open]
		label = key[open+1 : len(key)-1]
	} else {
		parentRunID = key
	}
	if subtestField != "" {
		label = subtestField
	}
	if label == "" {
		label = key
	}
	return parentRunID, label
}

// buildMessage assembles the located failure message for a node,
// normalizing runner output: CRLF collapsed and ANSI escapes stripped.
func buildMessage(node *types.TreeNode, entry types.ExecutionResult) types.TestMessage {
	text := entry.Message
	if entry.Traceback != "" {
		if text != "" {
			text += "\n"
		}
		text += entry.Traceback
	}
	text = stripansi.Strip(strings.ReplaceAll(text, "\r\n", "\n"))

	msg := types.TestMessage{Text: text}
	if node.HasLocation() {
		msg.Location = &types.Location{Path: node.Path, Line: node.Line}
	}
	return msg
}

// sortedKeys gives deterministic processing order for the result map.
func sortedKeys(result map[string]types.ExecutionResult) []string {
	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
