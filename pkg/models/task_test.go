package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress, TaskStatusExecuting,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusPeerReview, TaskStatusNeedsRevision,
		TaskStatusApproved,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if TaskStatus("running").Valid() {
		t.Error("expected unknown status to be invalid")
	}
	if TaskStatus("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskStatusApproved.Terminal() {
		t.Error("approved should be terminal")
	}
	if !TaskStatusFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	if TaskStatusCompleted.Terminal() {
		t.Error("completed is not terminal; it can still enter peer review")
	}
}

func TestTaskStatusSatisfied(t *testing.T) {
	if !TaskStatusCompleted.Satisfied() {
		t.Error("completed should satisfy dependents")
	}
	if !TaskStatusApproved.Satisfied() {
		t.Error("approved should satisfy dependents")
	}
	if TaskStatusFailed.Satisfied() {
		t.Error("failed must not satisfy dependents")
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to TaskStatus
	}{
		{TaskStatusPending, TaskStatusAssigned},
		{TaskStatusAssigned, TaskStatusInProgress},
		{TaskStatusInProgress, TaskStatusExecuting},
		{TaskStatusExecuting, TaskStatusCompleted},
		{TaskStatusExecuting, TaskStatusFailed},
		{TaskStatusCompleted, TaskStatusApproved},
		{TaskStatusCompleted, TaskStatusPeerReview},
		{TaskStatusCompleted, TaskStatusPending}, // quality gate sends work back
		{TaskStatusPeerReview, TaskStatusApproved},
		{TaskStatusPeerReview, TaskStatusNeedsRevision},
		{TaskStatusNeedsRevision, TaskStatusPending},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransition(tr.to) {
			t.Errorf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	denied := []struct {
		from, to TaskStatus
	}{
		{TaskStatusPending, TaskStatusExecuting},
		{TaskStatusFailed, TaskStatusPending},
		{TaskStatusApproved, TaskStatusPending},
		{TaskStatusExecuting, TaskStatusApproved},
		{TaskStatusPeerReview, TaskStatusFailed},
	}
	for _, tr := range denied {
		if tr.from.CanTransition(tr.to) {
			t.Errorf("expected %s -> %s to be denied", tr.from, tr.to)
		}
	}
}

func TestTaskTypeValid(t *testing.T) {
	if !TaskTypePredictiveModeling.Valid() {
		t.Error("predictive_modeling should be valid")
	}
	if TaskType("regression").Valid() {
		t.Error("unknown task type should be invalid")
	}
}

func TestTaskValidateParams(t *testing.T) {
	task := &Task{Type: TaskTypeTimeSeries, Params: map[string]string{"window": "30d", "horizon": "90d"}}
	if err := task.ValidateParams(); err != nil {
		t.Errorf("expected known parameters to validate, got %v", err)
	}

	task.Params["target"] = "churn"
	if err := task.ValidateParams(); err == nil {
		t.Error("expected unknown parameter to be rejected")
	}

	custom := &Task{Type: TaskTypeCustom, Params: map[string]string{"anything": "goes"}}
	if err := custom.ValidateParams(); err != nil {
		t.Errorf("custom tasks accept any parameters, got %v", err)
	}
}
