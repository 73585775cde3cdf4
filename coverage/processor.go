// Package coverage turns runner coverage payloads into per-file
// summaries and detailed per-line sequences.
package coverage

import (
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testexplorer/bridge/types"
)

// Processor is stateless and invoked once per connection, not per test.
type Processor struct {
	log log.Logger
}

// NewProcessor creates a coverage processor.
func NewProcessor(logger log.Logger) *Processor {
	return &Processor{log: logger}
}

// Process attaches a per-file summary to the run's coverage surface and
// returns the detailed per-line sequence keyed by file path for later
// on-demand detail queries.
//
// A total branch count of -1 means branch coverage was not requested
// for the run; no branch count is attached in that case. Input line
// numbers are 1-indexed; the detailed sequence is 0-indexed and spans
// the full line.
func (p *Processor) Process(payload *types.CoveragePayload, run types.TestRun) map[string][]types.LineDetail {
	details := make(map[string][]types.LineDetail, len(payload.Result))
	if payload.Result == nil {
		if payload.Error != "" {
			p.log.Error("Coverage pass failed", "cwd", payload.Cwd, "error", payload.Error)
		}
		return details
	}

	for path, metrics := range payload.Result {
		covered := len(metrics.LinesCovered)
		total := covered + len(metrics.LinesMissed)

		summary := &types.FileCoverageSummary{
			Path:  path,
			Lines: types.CoverageCount{Covered: covered, Total: total},
		}
		if metrics.TotalBranches != -1 {
			summary.Branches = &types.CoverageCount{
				Covered: metrics.ExecutedBranches,
				Total:   metrics.TotalBranches,
			}
		}
		run.AddCoverage(summary)

		details[path] = buildLineDetails(metrics)
	}

	return details
}

// buildLineDetails converts covered/missed line lists into an ordered
// 0-indexed detail sequence.
func buildLineDetails(metrics types.FileCoverage) []types.LineDetail {
	details := make([]types.LineDetail, 0, len(metrics.LinesCovered)+len(metrics.LinesMissed))
	for _, line := range metrics.LinesCovered {
		if line < 1 {
			continue
		}
		details = append(details, types.LineDetail{Line: line - 1, Covered: true})
	}
	for _, line := range metrics.LinesMissed {
		if line < 1 {
			continue
		}
		details = append(details, types.LineDetail{Line: line - 1, Covered: false})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Line < details[j].Line })
	return details
}
