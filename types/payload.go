package types

// PayloadStatus indicates whether a discovery or execution pass succeeded.
type PayloadStatus string

const (
	StatusSuccess PayloadStatus = "success"
	StatusError   PayloadStatus = "error"
)

// Outcome is the per-test result reported by the runner. Unknown values
// are ignored by the execution processor so newer runners can add
// outcomes without breaking older hosts.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeFailure          Outcome = "failure"
	OutcomeError            Outcome = "error"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeExpectedFailure  Outcome = "expected-failure"
	OutcomePassedUnexpected Outcome = "passed-unexpected"
	OutcomeSubtestSuccess   Outcome = "subtest-success"
	OutcomeSubtestFailure   Outcome = "subtest-failure"
)

// DiscoveredKind tags a node in the runner's discovery tree.
type DiscoveredKind string

const (
	DiscoveredFolder DiscoveredKind = "folder"
	DiscoveredFile   DiscoveredKind = "file"
	DiscoveredClass  DiscoveredKind = "class"
	DiscoveredTest   DiscoveredKind = "test"
)

// DiscoveredNode is the runner's view of one node in the test tree for a
// single discovery pass. Containers carry children; tests carry a run id
// and a source line. Field names are a wire contract with the runner.
type DiscoveredNode struct {
	Name     string            `json:"name"`
	Path     string            `json:"path"`
	Kind     DiscoveredKind    `json:"type_"`
	ID       string            `json:"id_"`
	Lineno   string            `json:"lineno,omitempty"`
	RunID    string            `json:"runID,omitempty"`
	Children []*DiscoveredNode `json:"children,omitempty"`
}

// IsContainer reports whether the discovered node groups other nodes.
func (d *DiscoveredNode) IsContainer() bool {
	return d.Kind != DiscoveredTest
}

// DiscoveryPayload is the message the runner posts after a discovery pass.
type DiscoveryPayload struct {
	Cwd    string          `json:"cwd"`
	Status PayloadStatus   `json:"status"`
	Tests  *DiscoveredNode `json:"tests,omitempty"`
	Error  []string        `json:"error,omitempty"`
}

// ExecutionResult is one entry in an execution payload's result map.
// The map key is the run id, or a composite "parent[label]" key for
// subtests, in which case Subtest carries the label.
type ExecutionResult struct {
	Test      string  `json:"test"`
	Outcome   Outcome `json:"outcome"`
	Message   string  `json:"message,omitempty"`
	Traceback string  `json:"traceback,omitempty"`
	Subtest   string  `json:"subtest,omitempty"`
}

// ExecutionPayload is the message the runner posts while executing tests.
type ExecutionPayload struct {
	Cwd    string                     `json:"cwd"`
	Status PayloadStatus              `json:"status"`
	Result map[string]ExecutionResult `json:"result,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// FileCoverage holds per-file coverage metrics from the runner.
// TotalBranches of -1 means branch coverage was not requested and must
// not be reported.
type FileCoverage struct {
	LinesCovered     []int `json:"lines_covered"`
	LinesMissed      []int `json:"lines_missed"`
	ExecutedBranches int   `json:"executed_branches"`
	TotalBranches    int   `json:"total_branches"`
}

// CoveragePayload is the message the runner posts once per coverage run.
type CoveragePayload struct {
	Coverage bool                    `json:"coverage"`
	Cwd      string                  `json:"cwd"`
	Result   map[string]FileCoverage `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}
