package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree() (*Tree, *TreeNode, *TreeNode) {
	tree := NewTree()
	folder := NewContainerNode("/ws/tests", "tests", "/ws/tests")
	test := NewCaseNode("/ws/tests/test_a.py::test_one", "test_one", "/ws/tests/test_a.py", 7)
	folder.AddChild(test)
	tree.Add(folder)
	return tree, folder, test
}

func TestTreeContains(t *testing.T) {
	tree, folder, test := buildTree()

	assert.True(t, tree.Contains(folder))
	assert.True(t, tree.Contains(test))
	assert.False(t, tree.Contains(nil))
}

func TestTreeContainsRejectsReplacedSubtree(t *testing.T) {
	tree, _, test := buildTree()

	// Rebuild the top-level container with the same id. The old subtree
	// shares ids with the new one but must no longer count as live.
	replacement := NewContainerNode("/ws/tests", "tests", "/ws/tests")
	newTest := NewCaseNode(test.ID, test.Label, test.Path, test.Line)
	replacement.AddChild(newTest)
	tree.Add(replacement)

	assert.False(t, tree.Contains(test))
	assert.True(t, tree.Contains(newTest))
}

func TestTreeContainsRejectsDetachedChild(t *testing.T) {
	tree, folder, test := buildTree()

	folder.ReplaceChildren(nil)

	assert.False(t, tree.Contains(test))
	assert.True(t, tree.Contains(folder))
}

func TestTreeDelete(t *testing.T) {
	tree, folder, _ := buildTree()

	tree.Delete(folder.ID)

	assert.Equal(t, 0, tree.Len())
	assert.False(t, tree.Contains(folder))
	assert.Empty(t, tree.Items())
}

func TestTreeItemsKeepInsertionOrder(t *testing.T) {
	tree := NewTree()
	tree.Add(NewContainerNode("b", "b", "b"))
	tree.Add(NewContainerNode("a", "a", "a"))

	items := tree.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "a", items[1].ID)
}

func TestTreeAddReplacesSameID(t *testing.T) {
	tree := NewTree()
	first := NewContainerNode("x", "first", "x")
	second := NewContainerNode("x", "second", "x")
	tree.Add(first)
	tree.Add(second)

	assert.Equal(t, 1, tree.Len())
	node, ok := tree.Get("x")
	require.True(t, ok)
	assert.Same(t, second, node)
	assert.False(t, tree.Contains(first))
}

func TestCases(t *testing.T) {
	tree, folder, test := buildTree()
	other := NewCaseNode("/ws/tests/test_a.py::test_two", "test_two", "/ws/tests/test_a.py", 12)
	folder.AddChild(other)

	cases := tree.Cases()
	require.Len(t, cases, 2)
	assert.Equal(t, test.ID, cases[0].ID)
	assert.Equal(t, other.ID, cases[1].ID)
}

func TestHasLocation(t *testing.T) {
	located := NewCaseNode("id", "label", "/ws/test.py", 3)
	unlocated := NewCaseNode("id2", "label", "", 0)

	assert.True(t, located.HasLocation())
	assert.False(t, unlocated.HasLocation())
}
