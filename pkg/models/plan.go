package models

import "time"

// PlanStatus represents the lifecycle state of a plan.
type PlanStatus string

const (
	// PlanStatusDraft indicates the plan is awaiting manager approval.
	PlanStatusDraft PlanStatus = "draft"
	// PlanStatusActive indicates the plan was approved and tasks may run.
	PlanStatusActive PlanStatus = "active"
	// PlanStatusCompleted indicates every task reached a terminal success state.
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusCancelled indicates the plan was abandoned.
	PlanStatusCancelled PlanStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusDraft, PlanStatusActive, PlanStatusCompleted, PlanStatusCancelled:
		return true
	default:
		return false
	}
}

// Plan is a unit of analytical work decomposed into a dependency graph of tasks.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// Name is the short description of the plan.
	Name string `json:"name"`
	// Objectives are the business objectives this plan addresses, in order.
	Objectives []string `json:"objectives"`
	// TaskIDs lists the tasks owned by this plan.
	TaskIDs []string `json:"task_ids,omitempty"`
	// Status is the current lifecycle state.
	Status PlanStatus `json:"status"`
	// ApprovedBy is the ID of the manager who approved the plan, if any.
	ApprovedBy string `json:"approved_by,omitempty"`
	// CreatedAt is when the plan was created.
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks structural requirements before graph construction.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "plan name is required"}
	}
	if len(p.Objectives) == 0 {
		return &ValidationError{Field: "objectives", Reason: "at least one objective is required"}
	}
	return nil
}
