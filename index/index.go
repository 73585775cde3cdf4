// Package index maintains the correlation between runner-assigned test
// ids, explorer tree ids and live tree nodes for one workspace root.
package index

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/testexplorer/bridge/metrics"
	"github.com/testexplorer/bridge/types"
)

// Tier identifies which resolution tier satisfied a lookup, so tests and
// instrumentation can assert how a node was found.
type Tier int

const (
	TierNone     Tier = iota // Lookup failed
	TierDirect               // Direct node map hit, validated against the tree
	TierUIID                 // Resolved via the run-id to ui-id mapping
	TierFullScan             // Resolved by a full recursive tree walk
)

// String returns the tier name for logs and metrics labels.
func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierUIID:
		return "uiid"
	case TierFullScan:
		return "fullscan"
	default:
		return "none"
	}
}

// Index holds three bidirectional mappings between run ids, ui ids and
// live tree nodes. The maps are kept mutually consistent: every mutation
// updates all three together. One Index is owned by exactly one
// workspace resolver and is never shared.
type Index struct {
	nodes  map[string]*types.TreeNode // run id -> live node
	uiIDs  map[string]string          // run id -> ui id
	runIDs map[string]string          // ui id  -> run id
	log    log.Logger
}

// New creates an empty index.
func New(logger log.Logger) *Index {
	return &Index{
		nodes:  make(map[string]*types.TreeNode),
		uiIDs:  make(map[string]string),
		runIDs: make(map[string]string),
		log:    logger,
	}
}

// Register inserts or overwrites the (runID, uiID, node) triple.
// Existing entries that would violate the at-most-one-per-id invariants
// are displaced first.
func (i *Index) Register(runID, uiID string, node *types.TreeNode) {
	// Displace a previous binding of this uiID to a different runID.
	if prevRun, ok := i.runIDs[uiID]; ok && prevRun != runID {
		delete(i.nodes, prevRun)
		delete(i.uiIDs, prevRun)
	}
	// Displace a previous uiID bound to this runID.
	if prevUI, ok := i.uiIDs[runID]; ok && prevUI != uiID {
		delete(i.runIDs, prevUI)
	}

	i.nodes[runID] = node
	i.uiIDs[runID] = uiID
	i.runIDs[uiID] = runID
}

// RunID returns the run id registered for a ui id.
func (i *Index) RunID(uiID string) (string, bool) {
	runID, ok := i.runIDs[uiID]
	return runID, ok
}

// UIID returns the ui id registered for a run id.
func (i *Index) UIID(runID string) (string, bool) {
	uiID, ok := i.uiIDs[runID]
	return uiID, ok
}

// Len returns the number of entries. All three maps always have equal
// cardinality.
func (i *Index) Len() int {
	return len(i.nodes)
}

// Clear empties all three maps. Called at the start of every discovery
// pass, which is authoritative and replaces prior state.
func (i *Index) Clear() {
	i.nodes = make(map[string]*types.TreeNode)
	i.uiIDs = make(map[string]string)
	i.runIDs = make(map[string]string)
}

// Lookup resolves a run id to a live tree node. Resolution is tiered:
//
//  1. Direct node map hit, validated by walking the node's ancestor
//     chain and checking pointer identity against the tree's top-level
//     registry. A failed validation evicts the entry.
//  2. The run-id to ui-id mapping, matched against top-level nodes and
//     one level of their children. A hit repairs the direct mapping; a
//     miss evicts the ui-id pair.
//  3. A full recursive walk over every case node in the tree. This is
//     O(tree) and logged as a fallback, but it guarantees a result is
//     never silently dropped while a matching node exists.
//
// The returned tier reports which path satisfied the request.
func (i *Index) Lookup(runID string, tree *types.Tree) (*types.TreeNode, Tier) {
	// Tier 1: direct hit.
	if node, ok := i.nodes[runID]; ok {
		if tree.Contains(node) {
			metrics.RecordLookupTier(TierDirect.String())
			return node, TierDirect
		}
		// Stale: the node is no longer reachable. Evict and fall through.
		delete(i.nodes, runID)
	}

	uiID, haveUIID := i.uiIDs[runID]
	if !haveUIID {
		metrics.RecordLookupTier(TierNone.String())
		return nil, TierNone
	}

	// Tier 2: shallow search by ui id, top level plus one level down.
	for _, item := range tree.Items() {
		if item.ID == uiID {
			i.Register(runID, uiID, item)
			metrics.RecordLookupTier(TierUIID.String())
			return item, TierUIID
		}
		for _, child := range item.Children {
			if child.ID == uiID {
				i.Register(runID, uiID, child)
				metrics.RecordLookupTier(TierUIID.String())
				return child, TierUIID
			}
		}
	}
	// The shallow search missed; evict the pair before the full scan so
	// a scan miss leaves no dangling mapping behind.
	delete(i.uiIDs, runID)
	delete(i.runIDs, uiID)

	// Tier 3: full scan over case nodes.
	var found *types.TreeNode
	tree.Walk(func(node *types.TreeNode) bool {
		if found != nil {
			return false
		}
		if node.Kind == types.NodeCase && node.ID == uiID {
			found = node
			return false
		}
		return true
	})
	if found != nil {
		i.log.Warn("Resolved test node via full tree scan", "runID", runID, "uiID", uiID)
		i.Register(runID, uiID, found)
		metrics.RecordLookupTier(TierFullScan.String())
		return found, TierFullScan
	}

	metrics.RecordLookupTier(TierNone.String())
	return nil, TierNone
}

// SweepStale validates every direct entry against the tree and removes
// entries whose node is no longer reachable. Intended to be called after
// bulk tree mutation outside of discovery. Returns the number of entries
// removed; calling it again without intervening mutation removes none.
func (i *Index) SweepStale(tree *types.Tree) int {
	removed := 0
	for runID, node := range i.nodes {
		if tree.Contains(node) {
			continue
		}
		delete(i.nodes, runID)
		if uiID, ok := i.uiIDs[runID]; ok {
			delete(i.uiIDs, runID)
			delete(i.runIDs, uiID)
		}
		removed++
	}
	if removed > 0 {
		i.log.Debug("Swept stale index entries", "removed", removed, "remaining", len(i.nodes))
	}
	return removed
}
