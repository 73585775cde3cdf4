package types

import (
	"sort"
)

// NodeKind defines the kind of node in the explorer tree
type NodeKind string

const (
	NodeContainer NodeKind = "container" // Folder, file or class grouping
	NodeCase      NodeKind = "case"      // Individual runnable test
	NodeError     NodeKind = "error"     // Workspace-level discovery error banner
)

// TreeNode represents a live node in the explorer tree.
// Liveness is defined by reachability: a node is live while its ancestor
// chain ends at a root that the owning Tree still holds, compared by
// pointer identity. Id-string equality is not enough because dead
// subtrees from a previous discovery pass can share ids with live ones.
type TreeNode struct {
	ID       string      // Unique id within the tree (UI identity)
	Label    string      // Display name
	Path     string      // File or folder path backing this node
	Line     int         // 1-indexed source line, 0 when unknown
	Kind     NodeKind    // Container, case or error banner
	Message  string      // Error text, only set on NodeError nodes
	Children []*TreeNode // Child nodes, ordered
	Parent   *TreeNode   // Parent node (nil for top-level nodes)
}

// NewContainerNode creates a grouping node (folder, file or class).
func NewContainerNode(id, label, path string) *TreeNode {
	return &TreeNode{
		ID:       id,
		Label:    label,
		Path:     path,
		Kind:     NodeContainer,
		Children: make([]*TreeNode, 0),
	}
}

// NewCaseNode creates a runnable test node.
func NewCaseNode(id, label, path string, line int) *TreeNode {
	return &TreeNode{
		ID:    id,
		Label: label,
		Path:  path,
		Line:  line,
		Kind:  NodeCase,
	}
}

// NewErrorNode creates a workspace error banner node.
func NewErrorNode(id, label, message string) *TreeNode {
	return &TreeNode{
		ID:      id,
		Label:   label,
		Kind:    NodeError,
		Message: message,
	}
}

// AddChild appends a child and sets its parent pointer.
func (n *TreeNode) AddChild(child *TreeNode) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// ReplaceChildren swaps the full child list. Old children are detached
// from the parent chain, which is what makes stale index entries
// detectable.
func (n *TreeNode) ReplaceChildren(children []*TreeNode) {
	for _, old := range n.Children {
		old.Parent = nil
	}
	for _, child := range children {
		child.Parent = n
	}
	n.Children = children
}

// Root walks the parent chain to the top-level ancestor.
func (n *TreeNode) Root() *TreeNode {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	return root
}

// IsContainer returns true for grouping nodes (including error banners).
func (n *TreeNode) IsContainer() bool {
	return n.Kind != NodeCase
}

// HasLocation reports whether the node carries a resolvable source position.
func (n *TreeNode) HasLocation() bool {
	return n.Path != "" && n.Line > 0
}

// Walk traverses the node and its descendants, stopping a branch when the
// visitor returns false.
func (n *TreeNode) Walk(visitor func(*TreeNode) bool) {
	if !visitor(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(visitor)
	}
}

// Tree is the explorer tree for one workspace root. The top-level
// registry maps ids to root nodes; it is the authority the index
// validates liveness against.
type Tree struct {
	items map[string]*TreeNode
	order []string
}

// NewTree creates an empty explorer tree.
func NewTree() *Tree {
	return &Tree{
		items: make(map[string]*TreeNode),
	}
}

// Get returns the top-level node with the given id, if registered.
func (t *Tree) Get(id string) (*TreeNode, bool) {
	node, ok := t.items[id]
	return node, ok
}

// Add registers a top-level node, replacing any previous node with the
// same id. The replaced node becomes unreachable.
func (t *Tree) Add(node *TreeNode) {
	node.Parent = nil
	if _, exists := t.items[node.ID]; !exists {
		t.order = append(t.order, node.ID)
	}
	t.items[node.ID] = node
}

// Delete removes a top-level node by id.
func (t *Tree) Delete(id string) {
	if _, ok := t.items[id]; !ok {
		return
	}
	delete(t.items, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Items returns the top-level nodes in insertion order.
func (t *Tree) Items() []*TreeNode {
	items := make([]*TreeNode, 0, len(t.order))
	for _, id := range t.order {
		items = append(items, t.items[id])
	}
	return items
}

// Len returns the number of top-level nodes.
func (t *Tree) Len() int {
	return len(t.items)
}

// Contains reports whether the node is live in this tree: its top-level
// ancestor must be the same object the registry holds for that id.
func (t *Tree) Contains(node *TreeNode) bool {
	if node == nil {
		return false
	}
	root := node.Root()
	registered, ok := t.items[root.ID]
	return ok && registered == root
}

// Walk traverses all top-level nodes and their descendants.
func (t *Tree) Walk(visitor func(*TreeNode) bool) {
	for _, id := range t.order {
		t.items[id].Walk(visitor)
	}
}

// Cases returns every case node currently reachable in the tree,
// sorted by id for deterministic iteration.
func (t *Tree) Cases() []*TreeNode {
	var cases []*TreeNode
	t.Walk(func(node *TreeNode) bool {
		if node.Kind == NodeCase {
			cases = append(cases, node)
		}
		return true
	})
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases
}
