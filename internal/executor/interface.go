// Package executor defines the boundary to the external analysis executor.
package executor

import (
	"context"

	"github.com/taskweave/taskweave/pkg/models"
)

// Request carries everything the executor needs to run one analysis.
type Request struct {
	// TaskID identifies the task being executed.
	TaskID string
	// Type selects the analysis to run.
	Type models.TaskType
	// Params holds type-specific parameters.
	Params map[string]string
	// DataHandle references the dataset to analyze.
	DataHandle string
}

// Executor runs a single analysis task. The engine treats implementations as
// black boxes: any returned error is recorded on the task, which moves to
// Failed, and the rest of the plan continues.
// This abstraction allows mocking execution in tests.
type Executor interface {
	Execute(ctx context.Context, req Request) (*models.Result, error)
}
