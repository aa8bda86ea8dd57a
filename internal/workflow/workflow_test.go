package workflow

import (
	"errors"
	"testing"

	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/pkg/models"
)

func newWorkflow(t *testing.T) (*Workflow, *store.Store) {
	t.Helper()
	s := store.New()
	return New(s, notify.New(s, nil)), s
}

func addUser(t *testing.T, s *store.Store, id string, role models.Role, workload int) *models.User {
	t.Helper()
	u, err := s.AddUser(&models.User{ID: id, Name: id, Role: role, Workload: workload, MaxWorkload: 10})
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	return u
}

func TestSubmitNotifiesRoleQueue(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "mgr", models.RoleManager, 0)

	req, err := w.Submit(models.ApprovalKindPlan, "plan-1", "author", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != models.ApprovalStatusPending {
		t.Errorf("expected pending, got %s", req.Status)
	}

	if got := s.NotificationsFor(string(models.RoleManager)); len(got) != 1 {
		t.Fatalf("expected 1 manager notification, got %d", len(got))
	}
	if q := w.Queue(models.RoleManager); len(q) != 1 {
		t.Fatalf("expected 1 queued request, got %d", len(q))
	}
	if q := w.Queue(models.RoleSeniorAnalyst); len(q) != 0 {
		t.Fatalf("plan approvals must not appear in the senior analyst queue, got %d", len(q))
	}
}

func TestSubmitRejectsDuplicateOpenRequest(t *testing.T) {
	w, _ := newWorkflow(t)
	if _, err := w.Submit(models.ApprovalKindPlan, "plan-1", "author", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Submit(models.ApprovalKindPlan, "plan-1", "author", ""); err == nil {
		t.Fatal("expected error for duplicate open request")
	}
}

func TestDecideApprove(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "mgr", models.RoleManager, 0)

	req, _ := w.Submit(models.ApprovalKindPlan, "plan-1", "author", "")
	decided, err := w.Decide(req.ID, "mgr", DecisionApprove, "looks good")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decided.Status != models.ApprovalStatusApproved {
		t.Errorf("expected approved, got %s", decided.Status)
	}
	if decided.Reviewer != "mgr" || decided.ReviewedAt == nil {
		t.Error("expected reviewer and timestamp recorded")
	}
	if len(decided.Comments) != 1 || decided.Comments[0].Body != "looks good" {
		t.Errorf("expected one comment, got %v", decided.Comments)
	}
}

func TestDecideTerminalIsImmutable(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "mgr", models.RoleManager, 0)

	req, _ := w.Submit(models.ApprovalKindPlan, "plan-1", "author", "")
	if _, err := w.Decide(req.ID, "mgr", DecisionReject, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := w.Decide(req.ID, "mgr", DecisionApprove, "changed my mind")
	if !errors.Is(err, ErrApprovalConflict) {
		t.Fatalf("expected ErrApprovalConflict, got %v", err)
	}

	got, _ := s.GetApproval(req.ID)
	if got.Status != models.ApprovalStatusRejected {
		t.Errorf("original decision must stand, got %s", got.Status)
	}
}

func TestDecideEnforcesReviewerRole(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "jr", models.RoleAnalyst, 0)

	req, _ := w.Submit(models.ApprovalKindPlan, "plan-1", "author", "")
	_, err := w.Decide(req.ID, "jr", DecisionApprove, "")
	if !errors.Is(err, ErrWrongReviewerRole) {
		t.Fatalf("expected ErrWrongReviewerRole, got %v", err)
	}
}

func TestDecideRejectsSelfReview(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "senior", models.RoleSeniorAnalyst, 0)

	req, _ := w.Submit(models.ApprovalKindPeerReview, "task-1", "senior", "")
	if _, err := w.Decide(req.ID, "senior", DecisionApprove, ""); err == nil {
		t.Fatal("expected error reviewing own submission")
	}
}

func TestResubmitCycle(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "mgr", models.RoleManager, 0)

	req, _ := w.Submit(models.ApprovalKindPlan, "plan-1", "author", "")
	if _, err := w.Decide(req.ID, "mgr", DecisionNeedsRevision, "tighten scope"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	back, err := w.Resubmit(req.ID, "author", "scope tightened")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Status != models.ApprovalStatusPending {
		t.Errorf("expected pending after resubmit, got %s", back.Status)
	}
	if !back.Resubmitted {
		t.Error("expected resubmitted flag set")
	}

	// A second resubmission in the same round is rejected.
	if _, err := w.Decide(req.ID, "mgr", DecisionNeedsRevision, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Resubmit(req.ID, "author", ""); err == nil {
		t.Fatal("expected error on second resubmission")
	}
}

func TestClaim(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "mgr", models.RoleManager, 0)

	req, _ := w.Submit(models.ApprovalKindFinalReport, "plan-1", "author", "")
	claimed, err := w.Claim(req.ID, "mgr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed.Reviewer != "mgr" {
		t.Errorf("expected reviewer mgr, got %s", claimed.Reviewer)
	}
}

func TestRequiresPeerReview(t *testing.T) {
	senior := &models.User{ID: "sr", Role: models.RoleSeniorAnalyst}
	junior := &models.User{ID: "jr", Role: models.RoleAnalyst}
	strong := &models.Result{Confidence: 0.9, Summary: "s", Insights: []string{"a", "b"}}
	weak := &models.Result{Confidence: 0.75, Summary: "s", Insights: []string{"a", "b"}}

	cases := []struct {
		name     string
		taskType models.TaskType
		result   *models.Result
		assignee *models.User
		want     bool
	}{
		{"high risk type", models.TaskTypePredictiveModeling, strong, senior, true},
		{"time series type", models.TaskTypeTimeSeries, strong, senior, true},
		{"anomaly type", models.TaskTypeAnomalyDetection, strong, senior, true},
		{"low confidence", models.TaskTypeStatisticalAnalysis, weak, senior, true},
		{"junior assignee", models.TaskTypeStatisticalAnalysis, strong, junior, true},
		{"no trigger", models.TaskTypeStatisticalAnalysis, strong, senior, false},
	}
	for _, tc := range cases {
		task := &models.Task{Type: tc.taskType}
		if got := RequiresPeerReview(task, tc.result, tc.assignee); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRoutePeerReviewPicksLeastLoadedSenior(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "sr-busy", models.RoleSeniorAnalyst, 4)
	addUser(t, s, "sr-free", models.RoleSeniorAnalyst, 1)
	addUser(t, s, "jr", models.RoleAnalyst, 0)

	task := &models.Task{ID: "t1", Type: models.TaskTypePredictiveModeling, Status: models.TaskStatusCompleted, AssignedTo: "jr"}
	req, err := w.RoutePeerReview(task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Reviewer != "sr-free" {
		t.Errorf("expected sr-free, got %s", req.Reviewer)
	}
	if task.Status != models.TaskStatusPeerReview {
		t.Errorf("expected peer_review status, got %s", task.Status)
	}
	if got := s.NotificationsFor("sr-free"); len(got) != 1 {
		t.Errorf("expected reviewer notification, got %d", len(got))
	}
}

func TestRoutePeerReviewExcludesAssignee(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "sr-self", models.RoleSeniorAnalyst, 0)

	task := &models.Task{ID: "t1", Type: models.TaskTypeTimeSeries, Status: models.TaskStatusCompleted, AssignedTo: "sr-self"}
	if _, err := w.RoutePeerReview(task); err == nil {
		t.Fatal("expected error: the only senior is the assignee")
	}
}

func TestLeastLoadedReviewerBreaksTiesByID(t *testing.T) {
	w, s := newWorkflow(t)
	addUser(t, s, "sr-zed", models.RoleSeniorAnalyst, 2)
	addUser(t, s, "sr-abe", models.RoleSeniorAnalyst, 2)

	got := w.LeastLoadedReviewer(models.RoleSeniorAnalyst, "")
	if got == nil || got.ID != "sr-abe" {
		t.Fatalf("expected sr-abe to win the tie, got %+v", got)
	}
}
