// Package diffrunner implements the Snapshot Differential Runner:
// deterministic replay of scripted {output, resize} steps against a
// blank internal/snapshot.Oracle, checked against expected checkpoint frame
// hashes. A data-driven scenario runner in place of one-off golden-frame
// Go test functions.
package diffrunner

import (
	"reflect"

	"github.com/harborctl/harborctl/internal/snapshot"
)

// Step is one scripted action: exactly one of Output/Resize is set.
type Step struct {
	Output []byte
	Resize *Resize
}

// Resize is a scripted resize action.
type Resize struct {
	Rows, Cols int
}

// Checkpoint names a step index (0-based, into Scenario.Steps) whose
// resulting frame is asserted against DirectFrameHash and, optionally,
// field-wise against DirectFrame.
type Checkpoint struct {
	AfterStep       int
	DirectFrameHash string
	DirectFrame     *snapshot.Frame // optional
}

// Scenario is one named replay script.
type Scenario struct {
	Name        string
	Rows, Cols  int
	Steps       []Step
	Checkpoints []Checkpoint
}

// CheckpointResult is one checkpoint's pass/fail outcome.
type CheckpointResult struct {
	AfterStep   int
	Passed      bool
	GotHash     string
	WantHash    string
	FieldDiffs  []string // populated only when DirectFrame was provided and it failed
}

// ScenarioResult is a scenario's overall outcome.
type ScenarioResult struct {
	Name    string
	Passed  bool
	Results []CheckpointResult
}

// Run replays scenario from a blank oracle and evaluates every checkpoint.
func Run(scenario Scenario) ScenarioResult {
	oracle := snapshot.New(scenario.Rows, scenario.Cols)
	checkpointByStep := make(map[int][]Checkpoint, len(scenario.Checkpoints))
	for _, cp := range scenario.Checkpoints {
		checkpointByStep[cp.AfterStep] = append(checkpointByStep[cp.AfterStep], cp)
	}

	result := ScenarioResult{Name: scenario.Name, Passed: true}
	for i, step := range scenario.Steps {
		if step.Resize != nil {
			oracle.Resize(step.Resize.Rows, step.Resize.Cols)
		}
		if len(step.Output) > 0 {
			_, _ = oracle.Write(step.Output)
		}
		for _, cp := range checkpointByStep[i] {
			frame := oracle.Snapshot()
			cr := CheckpointResult{
				AfterStep: cp.AfterStep,
				WantHash:  cp.DirectFrameHash,
				GotHash:   frame.FrameHash,
				Passed:    frame.FrameHash == cp.DirectFrameHash,
			}
			if cp.DirectFrame != nil {
				cr.FieldDiffs = diffFrame(frame, *cp.DirectFrame)
				if len(cr.FieldDiffs) > 0 {
					cr.Passed = false
				}
			}
			if !cr.Passed {
				result.Passed = false
			}
			result.Results = append(result.Results, cr)
		}
	}
	return result
}

func diffFrame(got, want snapshot.Frame) []string {
	var diffs []string
	if got.Rows != want.Rows {
		diffs = append(diffs, "rows")
	}
	if got.Cols != want.Cols {
		diffs = append(diffs, "cols")
	}
	if got.ActiveScreen != want.ActiveScreen {
		diffs = append(diffs, "activeScreen")
	}
	if got.Cursor != want.Cursor {
		diffs = append(diffs, "cursor")
	}
	if !reflect.DeepEqual(got.Lines, want.Lines) {
		diffs = append(diffs, "lines")
	}
	return diffs
}
