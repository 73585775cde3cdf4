package types

// Location points at a source position for a located test message.
type Location struct {
	Path string
	Line int // 1-indexed
}

// TestMessage carries the failure or error text attached to a test
// state transition. Location is nil when the node has no resolvable
// source position.
type TestMessage struct {
	Text     string
	Location *Location
}

// CoverageCount is a covered/total pair for one coverage dimension.
type CoverageCount struct {
	Covered int
	Total   int
}

// FileCoverageSummary is the per-file summary attached to a run's
// coverage surface. Branches is nil when branch coverage was not
// requested for the run.
type FileCoverageSummary struct {
	Path     string
	Lines    CoverageCount
	Branches *CoverageCount
}

// LineDetail is one entry of the detailed per-line coverage sequence.
// Lines are 0-indexed and span the full line.
type LineDetail struct {
	Line    int
	Covered bool
}

// TestRun is the state-reporting surface for one logical run. The
// execution and coverage processors drive it; implementations decide
// how states are rendered.
type TestRun interface {
	Started(node *TreeNode)
	Passed(node *TreeNode)
	Failed(node *TreeNode, msg TestMessage)
	Errored(node *TreeNode, msg TestMessage)
	Skipped(node *TreeNode)
	AddCoverage(summary *FileCoverageSummary)
}

// TestState is a recorded node state, used by RecordedRun.
type TestState string

const (
	StateStarted TestState = "started"
	StatePassed  TestState = "passed"
	StateFailed  TestState = "failed"
	StateErrored TestState = "errored"
	StateSkipped TestState = "skipped"
)

// RecordedState is one state transition captured by a RecordedRun.
type RecordedState struct {
	Node    *TreeNode
	State   TestState
	Message TestMessage
}

// RecordedRun is a TestRun that records every transition in order.
// The CLI renders from it and tests assert against it.
type RecordedRun struct {
	States   []RecordedState
	Coverage []*FileCoverageSummary
}

// NewRecordedRun creates an empty recording run.
func NewRecordedRun() *RecordedRun {
	return &RecordedRun{}
}

func (r *RecordedRun) Started(node *TreeNode) {
	r.States = append(r.States, RecordedState{Node: node, State: StateStarted})
}

func (r *RecordedRun) Passed(node *TreeNode) {
	r.States = append(r.States, RecordedState{Node: node, State: StatePassed})
}

func (r *RecordedRun) Failed(node *TreeNode, msg TestMessage) {
	r.States = append(r.States, RecordedState{Node: node, State: StateFailed, Message: msg})
}

func (r *RecordedRun) Errored(node *TreeNode, msg TestMessage) {
	r.States = append(r.States, RecordedState{Node: node, State: StateErrored, Message: msg})
}

func (r *RecordedRun) Skipped(node *TreeNode) {
	r.States = append(r.States, RecordedState{Node: node, State: StateSkipped})
}

func (r *RecordedRun) AddCoverage(summary *FileCoverageSummary) {
	r.Coverage = append(r.Coverage, summary)
}

// FinalStates collapses the recorded transitions into the last state
// seen per node id.
func (r *RecordedRun) FinalStates() map[string]TestState {
	final := make(map[string]TestState)
	for _, s := range r.States {
		final[s.Node.ID] = s.State
	}
	return final
}

// CountByState returns how many nodes ended in the given state.
func (r *RecordedRun) CountByState(state TestState) int {
	count := 0
	for _, s := range r.FinalStates() {
		if s == state {
			count++
		}
	}
	return count
}
