// Package ui renders the explorer tree and run summaries for the CLI
// surface.
package ui

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/testexplorer/bridge/types"
)

// Tree hierarchy symbols using box drawing characters
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   "
	TreeIndent     = "    "
)

// stateSymbol returns a colored marker for a final test state.
func stateSymbol(state types.TestState, ok bool) string {
	if !ok {
		return " "
	}
	switch state {
	case types.StatePassed:
		return text.FgGreen.Sprint("✓")
	case types.StateFailed:
		return text.FgRed.Sprint("✗")
	case types.StateErrored:
		return text.FgRed.Sprint("!")
	case types.StateSkipped:
		return text.FgYellow.Sprint("-")
	default:
		return text.FgCyan.Sprint("…")
	}
}

// RenderTree writes the workspace tree with per-node run states.
func RenderTree(w io.Writer, workspace string, tree *types.Tree, run *types.RecordedRun) {
	states := run.FinalStates()
	fmt.Fprintf(w, "%s\n", text.Bold.Sprint(workspace))

	items := tree.Items()
	for i, item := range items {
		renderNode(w, item, states, "", i == len(items)-1)
	}
	fmt.Fprintln(w)
}

func renderNode(w io.Writer, node *types.TreeNode, states map[string]types.TestState, prefix string, isLast bool) {
	connector := TreeBranch
	childPrefix := prefix + TreeContinue
	if isLast {
		connector = TreeLastBranch
		childPrefix = prefix + TreeIndent
	}

	label := node.Label
	if node.Kind == types.NodeError {
		label = text.FgRed.Sprintf("%s: %s", node.Label, firstLine(node.Message))
	}

	state, ok := states[node.ID]
	if node.Kind == types.NodeCase {
		fmt.Fprintf(w, "%s%s%s %s\n", prefix, connector, stateSymbol(state, ok), label)
	} else {
		fmt.Fprintf(w, "%s%s%s\n", prefix, connector, label)
	}

	for i, child := range node.Children {
		renderNode(w, child, states, childPrefix, i == len(node.Children)-1)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// RenderSummary writes the run's aggregate counts and coverage table.
func RenderSummary(w io.Writer, workspace string, run *types.RecordedRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Workspace", "Passed", "Failed", "Errored", "Skipped"})
	t.AppendRow(table.Row{
		workspace,
		run.CountByState(types.StatePassed),
		run.CountByState(types.StateFailed),
		run.CountByState(types.StateErrored),
		run.CountByState(types.StateSkipped),
	})
	t.Render()

	if len(run.Coverage) == 0 {
		return
	}

	c := table.NewWriter()
	c.SetOutputMirror(w)
	c.SetStyle(table.StyleRounded)
	c.AppendHeader(table.Row{"File", "Lines", "Branches"})
	for _, summary := range run.Coverage {
		branches := "n/a"
		if summary.Branches != nil {
			branches = fmt.Sprintf("%d/%d", summary.Branches.Covered, summary.Branches.Total)
		}
		c.AppendRow(table.Row{
			summary.Path,
			fmt.Sprintf("%d/%d", summary.Lines.Covered, summary.Lines.Total),
			branches,
		})
	}
	c.Render()
}
