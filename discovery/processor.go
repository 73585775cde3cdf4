// Package discovery materializes runner discovery payloads into the
// explorer tree and registers identity mappings for every test found.
package discovery

import (
	"context"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testexplorer/bridge/index"
	"github.com/testexplorer/bridge/metrics"
	"github.com/testexplorer/bridge/types"
)

// Sink receives the discovery-completed notification. It is always
// notified once per processed payload, whatever the outcome.
type Sink interface {
	DiscoveryFinished(workspace string, status types.PayloadStatus)
}

// NopSink discards notifications.
type NopSink struct{}

func (NopSink) DiscoveryFinished(string, types.PayloadStatus) {}

// Processor turns discovery payloads into tree mutations. It carries no
// per-workspace state; a single instance is shared across all resolvers
// and receives all context as parameters.
type Processor struct {
	log log.Logger
}

// NewProcessor creates a discovery processor.
func NewProcessor(logger log.Logger) *Processor {
	return &Processor{log: logger}
}

// errorNodeID returns the well-known id of the per-workspace error node.
func errorNodeID(workspace string) string {
	return workspace
}

// Process applies one discovery payload to the tree.
//
// An error status creates or updates a single error node keyed by the
// workspace path without touching previously discovered tests. A
// payload carrying tests clears the index and rebuilds the tree from
// the discovered nodes: containers are reused by id when the top-level
// registry already has them (children replaced, never appended), cases
// are created fresh each pass and registered into the index.
// Cancellation stops the traversal at node granularity; the partial
// tree left behind is consistent because the index was cleared before
// traversal began.
func (p *Processor) Process(ctx context.Context, payload *types.DiscoveryPayload, tree *types.Tree, idx *index.Index, workspace string, sink Sink) error {
	defer func() {
		sink.DiscoveryFinished(workspace, payload.Status)
		metrics.RecordDiscovery(workspace, string(payload.Status))
	}()

	if payload.Status == types.StatusError {
		p.upsertErrorNode(tree, workspace, payload.Error)
		if payload.Tests == nil {
			return nil
		}
		// Partial success: fall through and materialize what was found.
	} else {
		tree.Delete(errorNodeID(workspace))
	}

	if payload.Tests == nil {
		p.log.Debug("Discovery payload carried no tests", "workspace", workspace, "status", payload.Status)
		return nil
	}

	idx.Clear()
	return p.materializeTopLevel(ctx, payload.Tests, tree, idx)
}

// upsertErrorNode creates or refreshes the workspace error banner.
func (p *Processor) upsertErrorNode(tree *types.Tree, workspace string, errText []string) {
	message := strings.Join(errText, "\n")
	if node, ok := tree.Get(errorNodeID(workspace)); ok && node.Kind == types.NodeError {
		node.Message = message
		return
	}
	node := types.NewErrorNode(errorNodeID(workspace), "Unable to discover tests", message)
	node.Path = workspace
	tree.Add(node)
	p.log.Error("Test discovery failed", "workspace", workspace, "error", message)
}

// materializeTopLevel places the root of the discovered tree. The
// runner's session root maps to a top-level container that is reused
// across passes so the explorer does not flicker on re-discovery.
func (p *Processor) materializeTopLevel(ctx context.Context, root *types.DiscoveredNode, tree *types.Tree, idx *index.Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !root.IsContainer() {
		// A bare test at the top level is unusual but legal.
		node, err := p.buildNode(ctx, root, tree, idx)
		if err != nil {
			return err
		}
		if node != nil {
			tree.Add(node)
		}
		return nil
	}

	container, existed := tree.Get(root.ID)
	if !existed || container.Kind != types.NodeContainer {
		container = types.NewContainerNode(root.ID, root.Name, root.Path)
		tree.Add(container)
	} else {
		container.Label = root.Name
		container.Path = root.Path
	}

	children, err := p.buildChildren(ctx, root, tree, idx)
	// Replace, never append: repeated discovery must not accumulate
	// stale duplicates under a reused container.
	container.ReplaceChildren(children)
	return err
}

// buildChildren materializes the children of a discovered container.
func (p *Processor) buildChildren(ctx context.Context, parent *types.DiscoveredNode, tree *types.Tree, idx *index.Index) ([]*types.TreeNode, error) {
	children := make([]*types.TreeNode, 0, len(parent.Children))
	for _, discovered := range parent.Children {
		node, err := p.buildNode(ctx, discovered, tree, idx)
		if err != nil {
			return children, err
		}
		if node != nil {
			children = append(children, node)
		}
	}
	return children, nil
}

// buildNode materializes one discovered node and its subtree. Cases get
// no identity reuse: a fresh node per pass, registered immediately.
func (p *Processor) buildNode(ctx context.Context, discovered *types.DiscoveredNode, tree *types.Tree, idx *index.Index) (*types.TreeNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !discovered.IsContainer() {
		node := types.NewCaseNode(discovered.ID, discovered.Name, discovered.Path, parseLine(discovered.Lineno))
		idx.Register(discovered.RunID, discovered.ID, node)
		return node, nil
	}

	node := types.NewContainerNode(discovered.ID, discovered.Name, discovered.Path)
	children, err := p.buildChildren(ctx, discovered, tree, idx)
	node.ReplaceChildren(children)
	return node, err
}

// parseLine converts the runner's string line number, 0 when absent or
// malformed.
func parseLine(lineno string) int {
	if lineno == "" {
		return 0
	}
	line, err := strconv.Atoi(strings.TrimSpace(lineno))
	if err != nil || line < 0 {
		return 0
	}
	return line
}
