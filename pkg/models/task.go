package models

import (
	"fmt"
	"time"
)

// TaskType classifies the kind of analysis a task performs.
type TaskType string

const (
	TaskTypeDataProfiling       TaskType = "data_profiling"
	TaskTypeStatisticalAnalysis TaskType = "statistical_analysis"
	TaskTypeCorrelationAnalysis TaskType = "correlation_analysis"
	TaskTypeTimeSeries          TaskType = "time_series"
	TaskTypePredictiveModeling  TaskType = "predictive_modeling"
	TaskTypeAnomalyDetection    TaskType = "anomaly_detection"
	TaskTypeSegmentation        TaskType = "segmentation"
	TaskTypeVisualization       TaskType = "visualization"
	TaskTypeCustom              TaskType = "custom"
)

// Valid returns true if the task type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeDataProfiling, TaskTypeStatisticalAnalysis, TaskTypeCorrelationAnalysis,
		TaskTypeTimeSeries, TaskTypePredictiveModeling, TaskTypeAnomalyDetection,
		TaskTypeSegmentation, TaskTypeVisualization, TaskTypeCustom:
		return true
	default:
		return false
	}
}

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting for assignment.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusAssigned indicates the task has an assignee but work has not begun.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusInProgress indicates the assignee has picked up the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusExecuting indicates the analysis executor is running the task.
	TaskStatusExecuting TaskStatus = "executing"
	// TaskStatusCompleted indicates execution finished and a result is attached.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates execution failed. Failed is terminal.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusPeerReview indicates the result is waiting on a senior reviewer.
	TaskStatusPeerReview TaskStatus = "peer_review"
	// TaskStatusNeedsRevision indicates a reviewer sent the task back.
	TaskStatusNeedsRevision TaskStatus = "needs_revision"
	// TaskStatusApproved indicates the result passed all gates. Approved is terminal.
	TaskStatusApproved TaskStatus = "approved"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress, TaskStatusExecuting,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusPeerReview, TaskStatusNeedsRevision,
		TaskStatusApproved:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed out of this status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusApproved || s == TaskStatusFailed
}

// Satisfied returns true if the status counts as a met dependency for
// downstream tasks.
func (s TaskStatus) Satisfied() bool {
	return s == TaskStatusCompleted || s == TaskStatusApproved
}

// taskTransitions is the closed set of legal status transitions.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:       {TaskStatusAssigned},
	TaskStatusAssigned:      {TaskStatusInProgress},
	TaskStatusInProgress:    {TaskStatusExecuting},
	TaskStatusExecuting:     {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusCompleted:     {TaskStatusApproved, TaskStatusPeerReview, TaskStatusPending},
	TaskStatusPeerReview:    {TaskStatusApproved, TaskStatusNeedsRevision},
	TaskStatusNeedsRevision: {TaskStatusPending},
}

// CanTransition returns true if moving from s to next is a legal lifecycle step.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Result is the opaque payload produced by the analysis executor for a task.
type Result struct {
	// Summary is a short human-readable description of the findings.
	Summary string `json:"summary"`
	// Insights lists individual findings extracted from the analysis.
	Insights []string `json:"insights,omitempty"`
	// Metrics holds named numeric outputs (r_squared, anomaly_count, etc.).
	Metrics map[string]float64 `json:"metrics,omitempty"`
	// Confidence is the executor's confidence in the result (0.0-1.0).
	Confidence float64 `json:"confidence"`
	// QualityScore is the executor's self-assessed quality (0.0-1.0).
	QualityScore float64 `json:"quality_score"`
}

// Task represents a single analysis unit within a plan.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// PlanID is the ID of the owning plan.
	PlanID string `json:"plan_id"`
	// Name is the short description of the task.
	Name string `json:"name"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Type classifies the analysis this task performs.
	Type TaskType `json:"type"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// AssignedTo is the ID of the user working on this task, if any.
	AssignedTo string `json:"assigned_to,omitempty"`
	// Priority orders tasks within a plan (1 lowest - 5 highest).
	Priority int `json:"priority"`
	// RequiredSkills lists skills a user should have to take this task.
	RequiredSkills []string `json:"required_skills,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// Params holds type-specific execution parameters.
	Params map[string]string `json:"params,omitempty"`
	// DataHandle references the dataset this task operates on.
	DataHandle string `json:"data_handle,omitempty"`
	// Result is the executor output, set once the task completes.
	Result *Result `json:"result,omitempty"`
	// Error contains the failure reason if the task failed.
	Error string `json:"error,omitempty"`
	// GateIssues lists quality-gate findings from the latest evaluation.
	GateIssues []string `json:"gate_issues,omitempty"`
	// Revisions counts how many times the task was sent back for rework.
	Revisions int `json:"revisions,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when execution began, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached Completed or Failed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// paramKeys lists the execution parameters each analysis type understands.
// Custom tasks accept anything and are exempt from the check.
var paramKeys = map[TaskType][]string{
	TaskTypeDataProfiling:       {"sample_size"},
	TaskTypeStatisticalAnalysis: {"group_by"},
	TaskTypeCorrelationAnalysis: {"min_coefficient"},
	TaskTypeTimeSeries:          {"window", "horizon"},
	TaskTypePredictiveModeling:  {"target", "features"},
	TaskTypeAnomalyDetection:    {"sensitivity"},
	TaskTypeSegmentation:        {"segments"},
	TaskTypeVisualization:       {"chart_types"},
}

// ValidateParams rejects parameter keys the task's type does not understand.
func (t *Task) ValidateParams() error {
	if t.Type == TaskTypeCustom {
		return nil
	}
	allowed := paramKeys[t.Type]
	for key := range t.Params {
		known := false
		for _, k := range allowed {
			if k == key {
				known = true
				break
			}
		}
		if !known {
			return &ValidationError{
				Field:  "params",
				Reason: fmt.Sprintf("task type %s does not accept parameter %q", t.Type, key),
			}
		}
	}
	return nil
}
