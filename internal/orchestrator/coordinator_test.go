package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/executor"
	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/internal/workflow"
	"github.com/taskweave/taskweave/pkg/models"
)

func seedUsers(t *testing.T, s *store.Store, users ...*models.User) {
	t.Helper()
	for _, u := range users {
		if _, err := s.AddUser(u); err != nil {
			t.Fatalf("add user %s: %v", u.ID, err)
		}
	}
}

func manager(id string) *models.User {
	return &models.User{ID: id, Name: id, Role: models.RoleManager, MaxWorkload: 5}
}

func senior(id string, skills ...string) *models.User {
	return &models.User{ID: id, Name: id, Role: models.RoleSeniorAnalyst, Skills: skills, MaxWorkload: 5}
}

func analyst(id string, skills ...string) *models.User {
	return &models.User{ID: id, Name: id, Role: models.RoleAnalyst, Skills: skills, MaxWorkload: 5}
}

// activePlan creates a plan directly in Active status with the given tasks,
// bypassing the approval queue.
func activePlan(t *testing.T, s *store.Store, tasks ...*models.Task) *models.Plan {
	t.Helper()
	plan, err := s.CreatePlan(&models.Plan{Name: "test plan", Objectives: []string{"analyze"}})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	plan.Status = models.PlanStatusActive
	plan.ApprovedBy = "u-m"
	for _, task := range tasks {
		task.PlanID = plan.ID
		if _, err := s.CreateTask(task); err != nil {
			t.Fatalf("CreateTask %s: %v", task.Name, err)
		}
	}
	return plan
}

func newTestCoordinator(t *testing.T, exec executor.Executor) (*Coordinator, *store.Store) {
	t.Helper()
	s := store.New()
	return New(RequiredConfig{Store: s, Executor: exec}), s
}

func TestCreatePlanSubmitsForApproval(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	seedUsers(t, s, manager("u-m"))

	plan, err := c.CreatePlan(context.Background(), "u-m", "Q3 revenue", []string{"predict churn"}, "ds-1")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if plan.Status != models.PlanStatusDraft {
		t.Errorf("plan status = %s, want draft", plan.Status)
	}

	tasks := s.TasksForPlan(plan.ID)
	if len(tasks) < 2 {
		t.Fatalf("expected generated tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.DataHandle != "ds-1" {
			t.Errorf("task %s missing data handle", task.ID)
		}
	}

	req := s.PendingApprovalForSubject(models.ApprovalKindPlan, plan.ID)
	if req == nil {
		t.Fatal("no pending plan approval")
	}
	if got := s.NotificationsFor(string(models.RoleManager)); len(got) == 0 {
		t.Error("managers were not notified of the submission")
	}
}

func TestCreatePlanRejectsEmptyObjectives(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubExecutor{})
	if _, err := c.CreatePlan(context.Background(), "u-m", "empty", nil, ""); err == nil {
		t.Fatal("expected error for empty objectives")
	}
}

func TestDecidePlanApproveActivatesAndAssigns(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	seedUsers(t, s, manager("u-m"), senior("u-s1", "statistics", "data_quality", "profiling", "visualization", "reporting", "ml", "forecasting"))

	plan, err := c.CreatePlan(context.Background(), "u-m", "Q3", []string{"find trends over time"}, "ds-1")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	req := s.PendingApprovalForSubject(models.ApprovalKindPlan, plan.ID)

	if err := c.DecidePlan(req.ID, "u-m", workflow.DecisionApprove, "looks good"); err != nil {
		t.Fatalf("DecidePlan: %v", err)
	}
	if plan.Status != models.PlanStatusActive {
		t.Errorf("plan status = %s, want active", plan.Status)
	}
	if plan.ApprovedBy != "u-m" {
		t.Errorf("ApprovedBy = %q, want u-m", plan.ApprovedBy)
	}

	var assigned int
	for _, task := range s.TasksForPlan(plan.ID) {
		if task.Status == models.TaskStatusAssigned {
			assigned++
			if len(task.DependsOn) != 0 {
				t.Errorf("dependent task %s assigned before its dependencies", task.ID)
			}
		}
	}
	if assigned == 0 {
		t.Error("no ready task was assigned on activation")
	}
}

func TestDecidePlanRejectCancels(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	seedUsers(t, s, manager("u-m"))

	plan, err := c.CreatePlan(context.Background(), "u-m", "Q3", []string{"segment customers"}, "")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	req := s.PendingApprovalForSubject(models.ApprovalKindPlan, plan.ID)

	if err := c.DecidePlan(req.ID, "u-m", workflow.DecisionReject, "not this quarter"); err != nil {
		t.Fatalf("DecidePlan: %v", err)
	}
	if plan.Status != models.PlanStatusCancelled {
		t.Errorf("plan status = %s, want cancelled", plan.Status)
	}
}

func TestExecutePlanRequiresActivePlan(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	plan, err := s.CreatePlan(&models.Plan{Name: "draft", Objectives: []string{"x"}})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if err := c.ExecutePlan(context.Background(), plan.ID); err == nil {
		t.Fatal("expected error for non-active plan")
	}
}

func TestExecutePlanCompletesAndReports(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	seedUsers(t, s, manager("u-m"), senior("u-s1", "statistics"), senior("u-s2", "statistics"))

	profiling := &models.Task{Name: "profile", Type: models.TaskTypeDataProfiling, RequiredSkills: []string{"statistics"}}
	plan := activePlan(t, s, profiling)
	stats := &models.Task{Name: "stats", PlanID: plan.ID, Type: models.TaskTypeStatisticalAnalysis,
		RequiredSkills: []string{"statistics"}, DependsOn: []string{profiling.ID}}
	if _, err := s.CreateTask(stats); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	for _, task := range s.TasksForPlan(plan.ID) {
		if task.Status != models.TaskStatusApproved {
			t.Errorf("task %s status = %s, want approved", task.Name, task.Status)
		}
		if task.Result == nil || task.StartedAt == nil || task.CompletedAt == nil {
			t.Errorf("task %s missing result or timestamps", task.Name)
		}
	}
	if plan.Status != models.PlanStatusCompleted {
		t.Errorf("plan status = %s, want completed", plan.Status)
	}

	rpt := c.Report(plan.ID)
	if rpt == nil {
		t.Fatal("no report generated")
	}
	if rpt.TaskCount != 2 {
		t.Errorf("report TaskCount = %d, want 2", rpt.TaskCount)
	}
	if s.PendingApprovalForSubject(models.ApprovalKindFinalReport, plan.ID) == nil {
		t.Error("final report approval was not opened")
	}

	for _, u := range s.ListUsers() {
		if u.Workload != 0 {
			t.Errorf("user %s workload = %d after run, want 0", u.ID, u.Workload)
		}
	}
}

func TestHighRiskResultLandsInPeerReview(t *testing.T) {
	exec := &stubExecutor{}
	exec.setResult(models.TaskTypePredictiveModeling, &models.Result{
		Summary:      "churn model trained",
		Insights:     []string{"tenure dominates", "discounts retain"},
		Confidence:   0.75,
		QualityScore: 0.8,
	})
	c, s := newTestCoordinator(t, exec)
	seedUsers(t, s, manager("u-m"), senior("u-s1", "ml"), senior("u-s2", "ml"))

	task := &models.Task{Name: "churn model", Type: models.TaskTypePredictiveModeling, RequiredSkills: []string{"ml"}}
	plan := activePlan(t, s, task)

	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if task.Status != models.TaskStatusPeerReview {
		t.Fatalf("task status = %s, want peer_review", task.Status)
	}
	if plan.Status != models.PlanStatusActive {
		t.Errorf("plan status = %s, want still active", plan.Status)
	}

	req := s.PendingApprovalForSubject(models.ApprovalKindPeerReview, task.ID)
	if req == nil {
		t.Fatal("no pending peer review request")
	}
	if req.Reviewer == task.AssignedTo {
		t.Error("assignee must not review their own work")
	}
	if req.Reviewer != "u-s1" && req.Reviewer != "u-s2" {
		t.Errorf("reviewer = %q, want a senior analyst", req.Reviewer)
	}
}

func TestPeerReviewApprovalCompletesPlan(t *testing.T) {
	exec := &stubExecutor{}
	exec.setResult(models.TaskTypeTimeSeries, &models.Result{
		Summary:      "upward trend",
		Insights:     []string{"slope 0.3", "no seasonality"},
		Confidence:   0.9,
		QualityScore: 0.85,
	})
	c, s := newTestCoordinator(t, exec)
	seedUsers(t, s, manager("u-m"), senior("u-s1", "forecasting"), senior("u-s2", "forecasting"))

	task := &models.Task{Name: "trend", Type: models.TaskTypeTimeSeries, RequiredSkills: []string{"forecasting"}}
	plan := activePlan(t, s, task)

	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	req := s.PendingApprovalForSubject(models.ApprovalKindPeerReview, task.ID)
	if req == nil {
		t.Fatal("no pending peer review request")
	}

	if err := c.DecidePeerReview(req.ID, req.Reviewer, workflow.DecisionApprove, "solid"); err != nil {
		t.Fatalf("DecidePeerReview: %v", err)
	}
	if task.Status != models.TaskStatusApproved {
		t.Errorf("task status = %s, want approved", task.Status)
	}
	if plan.Status != models.PlanStatusCompleted {
		t.Errorf("plan status = %s, want completed", plan.Status)
	}
	if c.Report(plan.ID) == nil {
		t.Error("no report generated after final approval")
	}
}

func TestPeerReviewRevisionSendsTaskBack(t *testing.T) {
	exec := &stubExecutor{}
	exec.setResult(models.TaskTypeAnomalyDetection, &models.Result{
		Summary:      "outliers found",
		Insights:     []string{"3 spikes", "one sensor fault"},
		Confidence:   0.9,
		QualityScore: 0.85,
	})
	c, s := newTestCoordinator(t, exec)
	seedUsers(t, s, manager("u-m"), senior("u-s1", "statistics"), senior("u-s2", "statistics"))

	task := &models.Task{Name: "outliers", Type: models.TaskTypeAnomalyDetection, RequiredSkills: []string{"statistics"}}
	plan := activePlan(t, s, task)

	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	assignee := task.AssignedTo
	req := s.PendingApprovalForSubject(models.ApprovalKindPeerReview, task.ID)
	if req == nil {
		t.Fatal("no pending peer review request")
	}

	if err := c.DecidePeerReview(req.ID, req.Reviewer, workflow.DecisionNeedsRevision, "check the sensor fault"); err != nil {
		t.Fatalf("DecidePeerReview: %v", err)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("task status = %s, want pending", task.Status)
	}
	if task.Revisions != 1 {
		t.Errorf("Revisions = %d, want 1", task.Revisions)
	}
	if task.AssignedTo != "" {
		t.Errorf("AssignedTo = %q, want cleared", task.AssignedTo)
	}
	if got := s.NotificationsFor(assignee); len(got) == 0 {
		t.Error("previous assignee was not notified of the revision request")
	}
}

func TestPeerReviewRejectsOutrightRejection(t *testing.T) {
	c, _ := newTestCoordinator(t, &stubExecutor{})
	if err := c.DecidePeerReview("any", "u-s1", workflow.DecisionReject, ""); err == nil {
		t.Fatal("expected error for reject decision on peer review")
	}
}

func TestGateFailureParksTaskForRework(t *testing.T) {
	exec := &stubExecutor{}
	exec.setResult(models.TaskTypeSegmentation, &models.Result{
		Summary:      "segments identified",
		Insights:     []string{"two clusters"},
		Confidence:   0.9,
		QualityScore: 0.8,
	})
	c, s := newTestCoordinator(t, exec)
	seedUsers(t, s, manager("u-m"), senior("u-s1", "clustering"))

	task := &models.Task{Name: "segments", Type: models.TaskTypeSegmentation, RequiredSkills: []string{"clustering"}}
	plan := activePlan(t, s, task)

	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if task.Status != models.TaskStatusPending {
		t.Fatalf("task status = %s, want pending", task.Status)
	}
	if task.AssignedTo != "" {
		t.Errorf("AssignedTo = %q, want cleared", task.AssignedTo)
	}
	if len(task.GateIssues) == 0 {
		t.Fatal("gate issues were not recorded")
	}
	found := false
	for _, issue := range task.GateIssues {
		if strings.Contains(issue, "insights") {
			found = true
		}
	}
	if !found {
		t.Errorf("gate issues %v should name the insight shortfall", task.GateIssues)
	}
	if plan.Status != models.PlanStatusActive {
		t.Errorf("plan status = %s, want still active", plan.Status)
	}
}

func TestResubmitAfterReworkRunsAgain(t *testing.T) {
	exec := &stubExecutor{}
	exec.setResult(models.TaskTypeSegmentation, &models.Result{
		Summary:      "segments identified",
		Insights:     []string{"two clusters"},
		Confidence:   0.9,
		QualityScore: 0.8,
	})
	c, s := newTestCoordinator(t, exec)
	seedUsers(t, s, manager("u-m"), senior("u-s1", "clustering"))

	task := &models.Task{Name: "segments", Type: models.TaskTypeSegmentation, RequiredSkills: []string{"clustering"}}
	plan := activePlan(t, s, task)

	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("first ExecutePlan: %v", err)
	}
	if len(task.GateIssues) == 0 {
		t.Fatal("expected gate failure on first run")
	}

	// Rework produces a fuller result
	exec.setResult(models.TaskTypeSegmentation, &models.Result{
		Summary:      "segments identified and profiled",
		Insights:     []string{"two clusters", "cluster B churns more"},
		Confidence:   0.92,
		QualityScore: 0.88,
	})
	if err := c.ResubmitTask(task.ID); err != nil {
		t.Fatalf("ResubmitTask: %v", err)
	}
	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("second ExecutePlan: %v", err)
	}

	if task.Status != models.TaskStatusApproved {
		t.Errorf("task status = %s, want approved after rework", task.Status)
	}
	if plan.Status != models.PlanStatusCompleted {
		t.Errorf("plan status = %s, want completed", plan.Status)
	}
}

func TestResubmitRequiresOpenIssues(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	task := &models.Task{Name: "clean", Type: models.TaskTypeCustom}
	activePlan(t, s, task)

	if err := c.ResubmitTask(task.ID); err == nil {
		t.Fatal("expected error for task without open issues")
	}
}

func TestCancelTaskFailsExecution(t *testing.T) {
	exec := &stubExecutor{block: true, started: make(chan string, 1)}
	c, s := newTestCoordinator(t, exec)
	seedUsers(t, s, manager("u-m"), senior("u-s1", "statistics"))

	task := &models.Task{Name: "slow", Type: models.TaskTypeCustom, RequiredSkills: []string{"statistics"}}
	plan := activePlan(t, s, task)

	done := make(chan error, 1)
	go func() { done <- c.ExecutePlan(context.Background(), plan.ID) }()

	select {
	case <-exec.started:
	case <-time.After(5 * time.Second):
		t.Fatal("task never started")
	}
	if !c.CancelTask(task.ID) {
		t.Fatal("CancelTask returned false for a running task")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ExecutePlan: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ExecutePlan did not return after cancellation")
	}

	if task.Status != models.TaskStatusFailed {
		t.Errorf("task status = %s, want failed", task.Status)
	}
	if !strings.Contains(task.Error, "context canceled") {
		t.Errorf("task error = %q, want cancellation reason", task.Error)
	}
	if got := s.NotificationsFor(string(models.RoleManager)); len(got) == 0 {
		t.Error("managers were not notified of the failure")
	}
}

func TestExecutePlanEmitsLifecycleEvents(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	seedUsers(t, s, manager("u-m"), senior("u-s1", "statistics"))

	task := &models.Task{Name: "stats", Type: models.TaskTypeStatisticalAnalysis, RequiredSkills: []string{"statistics"}}
	plan := activePlan(t, s, task)

	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	seen := make(map[EventType]bool)
	for {
		select {
		case e := <-c.Events():
			seen[e.Type] = true
		default:
			for _, want := range []EventType{EventTaskAssigned, EventTaskStarted, EventTaskCompleted, EventTaskApproved, EventPlanCompleted, EventReportReady} {
				if !seen[want] {
					t.Errorf("event %s was not emitted", want)
				}
			}
			return
		}
	}
}

func TestExecutePlanDispatchesMoreTasksThanWorkerSlots(t *testing.T) {
	cfg := config.Default()
	cfg.Workers.Count = 1
	s := store.New()
	c := New(RequiredConfig{Store: s, Executor: &stubExecutor{}}, WithConfig(cfg))
	seedUsers(t, s, manager("u-m"),
		&models.User{ID: "u-s1", Name: "u-s1", Role: models.RoleSeniorAnalyst, MaxWorkload: 8})

	// Eight independent tasks assigned in one pass overflow both of a
	// one-worker pool's buffers; dispatch must not hold the coordinator
	// lock the workers need, and must keep draining outcomes while it
	// submits.
	var tasks []*models.Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, &models.Task{Name: fmt.Sprintf("batch-%d", i), Type: models.TaskTypeCustom})
	}
	plan := activePlan(t, s, tasks...)

	done := make(chan error, 1)
	go func() { done <- c.ExecutePlan(context.Background(), plan.ID) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ExecutePlan: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ExecutePlan hung dispatching more tasks than worker slots")
	}

	for _, task := range s.TasksForPlan(plan.ID) {
		if task.Status != models.TaskStatusApproved {
			t.Errorf("task %s status = %s, want approved", task.Name, task.Status)
		}
	}
	if plan.Status != models.PlanStatusCompleted {
		t.Errorf("plan status = %s, want completed", plan.Status)
	}
}

func TestDecideWrongKindLeavesRequestPending(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	seedUsers(t, s, manager("u-m"))

	plan, err := c.CreatePlan(context.Background(), "u-m", "Q4", []string{"segment customers"}, "")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	req := s.PendingApprovalForSubject(models.ApprovalKindPlan, plan.ID)
	if req == nil {
		t.Fatal("no pending plan approval")
	}

	if err := c.DecideFinalReport(req.ID, "u-m", workflow.DecisionApprove, ""); err == nil {
		t.Fatal("expected error feeding a plan request to the final report handler")
	}
	if req.Status != models.ApprovalStatusPending {
		t.Fatalf("request status = %s, the rejected attempt must leave it pending", req.Status)
	}

	if err := c.DecidePlan(req.ID, "u-m", workflow.DecisionApprove, "ok"); err != nil {
		t.Fatalf("DecidePlan after wrong entry point: %v", err)
	}
	if plan.Status != models.PlanStatusActive {
		t.Errorf("plan status = %s, want active", plan.Status)
	}
}

func TestDecideFinalReportApproveResolvesRequest(t *testing.T) {
	c, s := newTestCoordinator(t, &stubExecutor{})
	seedUsers(t, s, manager("u-m"), manager("u-m2"), senior("u-s1", "statistics"))

	task := &models.Task{Name: "stats", Type: models.TaskTypeStatisticalAnalysis, RequiredSkills: []string{"statistics"}}
	plan := activePlan(t, s, task)

	if err := c.ExecutePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	req := s.PendingApprovalForSubject(models.ApprovalKindFinalReport, plan.ID)
	if req == nil {
		t.Fatal("no pending final report approval")
	}

	// The approving manager submitted the report, so a second manager
	// signs off.
	if err := c.DecideFinalReport(req.ID, "u-m2", workflow.DecisionApprove, "ship it"); err != nil {
		t.Fatalf("DecideFinalReport: %v", err)
	}
	if req.Status != models.ApprovalStatusApproved {
		t.Errorf("request status = %s, want approved", req.Status)
	}
	if s.PendingApprovalForSubject(models.ApprovalKindFinalReport, plan.ID) != nil {
		t.Error("final report request still pending after approval")
	}
}
