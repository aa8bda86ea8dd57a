package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskweave/taskweave/internal/assign"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/executor"
	"github.com/taskweave/taskweave/internal/graph"
	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/planner"
	"github.com/taskweave/taskweave/internal/report"
	"github.com/taskweave/taskweave/internal/state"
	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/internal/workflow"
	"github.com/taskweave/taskweave/pkg/models"
)

// RequiredConfig holds the dependencies every Coordinator needs.
type RequiredConfig struct {
	// Store is the entity repository.
	Store *store.Store
	// Executor runs individual analysis tasks.
	Executor executor.Executor
}

// Option configures optional Coordinator dependencies.
type Option func(*Coordinator)

// WithConfig overrides the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// WithPlanner overrides the default rule-based plan generator.
func WithPlanner(g planner.Generator) Option {
	return func(c *Coordinator) { c.planner = g }
}

// WithSink forwards dispatched notifications to the given sink.
func WithSink(s notify.Sink) Option {
	return func(c *Coordinator) { c.sink = s }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithStateDB enables snapshot persistence after every plan state change.
func WithStateDB(db *state.DB) Option {
	return func(c *Coordinator) { c.stateDB = db }
}

// Coordinator drives plans from submission through execution to the final
// report. It wires together: planner -> graph -> assignment -> worker pool
// -> quality gate -> approval workflow -> aggregator.
type Coordinator struct {
	store      *store.Store
	executor   executor.Executor
	cfg        *config.Config
	planner    planner.Generator
	sink       notify.Sink
	logger     *DebugLogger
	stateDB    *state.DB
	assigner   *assign.Engine
	notifier   *notify.Dispatcher
	workflow   *workflow.Workflow
	aggregator *report.Aggregator
	gate       *Gate
	emitter    *EventEmitter

	// mu serializes every entity mutation the coordinator performs, so a
	// completion handler and a review decision can never interleave on the
	// same task.
	mu sync.Mutex
	// pool is the worker pool of the run in progress, nil otherwise.
	pool *Pool
	// reports caches generated reports by plan ID.
	reports map[string]*report.Report
}

// New creates a Coordinator with the given required dependencies and options.
func New(req RequiredConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    req.Store,
		executor: req.Executor,
		cfg:      config.Default(),
		planner:  planner.NewRuleBased(),
		logger:   NopLogger(),
		reports:  make(map[string]*report.Report),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.notifier = notify.New(c.store, c.sink)
	c.workflow = workflow.New(c.store, c.notifier)
	c.aggregator = report.New(c.workflow)
	c.gate = NewGate(c.cfg.Gate)

	var assignOpts []assign.Option
	if c.cfg.Assignment.Strict {
		assignOpts = append(assignOpts, assign.WithStrict())
	}
	c.assigner = assign.New(c.store, assignOpts...)

	c.emitter = NewEventEmitter(64)
	return c
}

// Events returns the coordinator's event stream.
func (c *Coordinator) Events() <-chan Event {
	return c.emitter.Events()
}

// DroppedEventCount returns the number of events dropped due to a full buffer.
func (c *Coordinator) DroppedEventCount() uint64 {
	return c.emitter.DroppedCount()
}

// CloseEvents closes the event stream. Call only after all plan runs have
// returned; Emit on a closed emitter panics.
func (c *Coordinator) CloseEvents() {
	c.emitter.Close()
}

// Workflow exposes the approval workflow for queue inspection.
func (c *Coordinator) Workflow() *workflow.Workflow {
	return c.workflow
}

// Report returns the generated report for a plan, or nil if none exists yet.
func (c *Coordinator) Report(planID string) *report.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reports[planID]
}

func (c *Coordinator) emit(e Event) {
	e.Timestamp = time.Now()
	c.emitter.Emit(e)
}

// CreatePlan expands objectives into a task graph, validates it is acyclic,
// and submits the plan for manager approval. The returned plan is in Draft
// status until a manager decides.
func (c *Coordinator) CreatePlan(ctx context.Context, submitterID, name string, objectives []string, dataHandle string) (*models.Plan, error) {
	specs, err := c.planner.GenerateTasks(ctx, objectives, dataHandle)
	if err != nil {
		return nil, fmt.Errorf("generate tasks: %w", err)
	}

	plan, err := c.store.CreatePlan(&models.Plan{Name: name, Objectives: objectives})
	if err != nil {
		return nil, err
	}

	// Materialize in two passes: IDs exist only after creation, and specs
	// reference dependencies by index.
	tasks := make([]*models.Task, len(specs))
	for i, spec := range specs {
		t, err := c.store.CreateTask(&models.Task{
			PlanID:         plan.ID,
			Name:           spec.Name,
			Description:    spec.Description,
			Type:           spec.Type,
			Priority:       spec.Priority,
			RequiredSkills: spec.RequiredSkills,
			DataHandle:     dataHandle,
		})
		if err != nil {
			return nil, fmt.Errorf("create task %q: %w", spec.Name, err)
		}
		tasks[i] = t
	}
	for i, spec := range specs {
		for _, dep := range spec.DependsOn {
			if dep < 0 || dep >= len(tasks) {
				return nil, fmt.Errorf("task %q references unknown dependency index %d", specs[i].Name, dep)
			}
			tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[dep].ID)
		}
	}

	if _, err := graph.Build(tasks); err != nil {
		plan.Status = models.PlanStatusCancelled
		return nil, fmt.Errorf("plan %s has an invalid task graph: %w", plan.ID, err)
	}

	if _, err := c.workflow.Submit(models.ApprovalKindPlan, plan.ID, submitterID, ""); err != nil {
		return nil, err
	}

	c.logger.Log("[plan %s] submitted with %d tasks", plan.ID, len(tasks))
	c.emit(Event{Type: EventPlanSubmitted, PlanID: plan.ID, UserID: submitterID,
		Message: fmt.Sprintf("plan %q submitted with %d tasks", plan.Name, len(tasks))})
	c.persistPlan(plan.ID)
	return plan, nil
}

// DecidePlan records a manager's verdict on a plan approval request.
// Approval activates the plan and assigns every ready task; rejection
// cancels the plan.
func (c *Coordinator) DecidePlan(requestID, reviewerID string, decision workflow.Decision, comment string) error {
	// Kind is checked before Decide so a request fed to the wrong entry
	// point stays pending instead of being consumed by the error path.
	req, err := c.store.GetApproval(requestID)
	if err != nil {
		return err
	}
	if req.Kind != models.ApprovalKindPlan {
		return fmt.Errorf("request %s gates a %s, not a plan", requestID, req.Kind)
	}
	if _, err := c.workflow.Decide(requestID, reviewerID, decision, comment); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	plan, err := c.store.GetPlan(req.SubjectID)
	if err != nil {
		return err
	}

	switch decision {
	case workflow.DecisionApprove:
		plan.Status = models.PlanStatusActive
		plan.ApprovedBy = reviewerID
		c.logger.Log("[plan %s] approved by %s", plan.ID, reviewerID)
		c.emit(Event{Type: EventPlanApproved, PlanID: plan.ID, UserID: reviewerID})
		c.assignReadyLocked(plan.ID)
	case workflow.DecisionReject:
		plan.Status = models.PlanStatusCancelled
		c.logger.Log("[plan %s] rejected by %s", plan.ID, reviewerID)
		c.emit(Event{Type: EventPlanRejected, PlanID: plan.ID, UserID: reviewerID, Message: comment})
	case workflow.DecisionNeedsRevision:
		// Plan stays Draft; the submitter reworks objectives and resubmits.
		c.logger.Log("[plan %s] sent back for revision by %s", plan.ID, reviewerID)
	}

	c.persistPlan(plan.ID)
	return nil
}

// AssignReady routes every ready task of a plan to the best-fit user.
func (c *Coordinator) AssignReady(planID string) []*assign.Assignment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assignReadyLocked(planID)
}

func (c *Coordinator) assignReadyLocked(planID string) []*assign.Assignment {
	tasks := c.store.TasksForPlan(planID)
	g, err := graph.Build(tasks)
	if err != nil {
		c.logger.Log("[plan %s] graph rebuild failed: %v", planID, err)
		return nil
	}

	assignments, errs := c.assigner.AutoAssignReady(g)
	for _, a := range assignments {
		c.logger.Log("[plan %s] task %s assigned to %s (score %.2f, fallback=%t)",
			planID, a.TaskID, a.UserID, a.Score, a.Fallback)
		c.emit(Event{Type: EventTaskAssigned, PlanID: planID, TaskID: a.TaskID, UserID: a.UserID,
			Message: fmt.Sprintf("task %s assigned to %s (score %.2f)", a.TaskID, a.UserID, a.Score)})
	}
	// Stalls are logged here and surfaced as a single event when the run
	// loop goes quiescent, not on every scheduling pass.
	for _, err := range errs {
		c.logger.Log("[plan %s] assignment stalled: %v", planID, err)
	}
	return assignments
}

// DecidePeerReview records a senior analyst's verdict on a task result.
// Approval finalizes the task; a revision verdict sends it back to Pending
// for reassignment. Peer reviews do not support outright rejection: a result
// that cannot stand is revised, not discarded.
func (c *Coordinator) DecidePeerReview(requestID, reviewerID string, decision workflow.Decision, comment string) error {
	if decision == workflow.DecisionReject {
		return fmt.Errorf("peer reviews support approve or needs_revision")
	}

	req, err := c.store.GetApproval(requestID)
	if err != nil {
		return err
	}
	if req.Kind != models.ApprovalKindPeerReview {
		return fmt.Errorf("request %s gates a %s, not a task result", requestID, req.Kind)
	}
	if _, err := c.workflow.Decide(requestID, reviewerID, decision, comment); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	task, err := c.store.GetTask(req.SubjectID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusPeerReview {
		return fmt.Errorf("task %s is %s, not in peer review", task.ID, task.Status)
	}

	switch decision {
	case workflow.DecisionApprove:
		task.Status = models.TaskStatusApproved
		c.logger.Log("[task %s] peer review approved by %s", task.ID, reviewerID)
		c.emit(Event{Type: EventTaskApproved, PlanID: task.PlanID, TaskID: task.ID, UserID: reviewerID,
			Message: fmt.Sprintf("task %q approved in peer review", task.Name)})
		c.maybeCompletePlanLocked(task.PlanID)
	case workflow.DecisionNeedsRevision:
		// NeedsRevision is transient: the task passes straight through it
		// and re-enters the pending queue for reassignment.
		task.Status = models.TaskStatusPending
		task.Revisions++
		if comment != "" {
			task.GateIssues = []string{comment}
		}
		if task.AssignedTo != "" {
			c.notifier.ToUser(task.AssignedTo, models.NotificationKindRevisionRequested,
				"task %q was sent back for revision: %s", task.Name, comment)
			task.AssignedTo = ""
		}
		c.logger.Log("[task %s] sent back for revision by %s (revision %d)", task.ID, reviewerID, task.Revisions)
		c.emit(Event{Type: EventRevisionRequested, PlanID: task.PlanID, TaskID: task.ID, UserID: reviewerID, Message: comment})
	}

	c.persistPlan(task.PlanID)
	return nil
}

// DecideFinalReport records a manager's verdict on the executive report.
func (c *Coordinator) DecideFinalReport(requestID, reviewerID string, decision workflow.Decision, comment string) error {
	req, err := c.store.GetApproval(requestID)
	if err != nil {
		return err
	}
	if req.Kind != models.ApprovalKindFinalReport {
		return fmt.Errorf("request %s gates a %s, not the final report", requestID, req.Kind)
	}
	if _, err := c.workflow.Decide(requestID, reviewerID, decision, comment); err != nil {
		return err
	}

	c.logger.Log("[plan %s] final report decision by %s: %s", req.SubjectID, reviewerID, decision)
	return nil
}

// ResubmitTask clears a pending task's open issues after rework, letting
// the scheduler route it again. Gate failures and revision requests both
// park a task this way until someone resubmits it.
func (c *Coordinator) ResubmitTask(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if t.Status != models.TaskStatusPending {
		return fmt.Errorf("task %s is %s, only pending tasks can be resubmitted", taskID, t.Status)
	}
	if len(t.GateIssues) == 0 {
		return fmt.Errorf("task %s has no open issues to resubmit against", taskID)
	}

	t.GateIssues = nil
	c.logger.Log("[task %s] resubmitted after rework", taskID)
	c.persistPlan(t.PlanID)
	return nil
}

// CancelTask stops a queued or running execution. Returns false when the
// task is not in flight.
func (c *Coordinator) CancelTask(taskID string) bool {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	if pool == nil {
		return false
	}
	return pool.Cancel(taskID)
}

// maybeCompletePlanLocked finishes a plan whose tasks have all reached a
// satisfied state: the plan moves to Completed, the report is assembled and
// submitted for final approval, and managers are notified.
func (c *Coordinator) maybeCompletePlanLocked(planID string) {
	plan, err := c.store.GetPlan(planID)
	if err != nil || plan.Status != models.PlanStatusActive {
		return
	}

	tasks := c.store.TasksForPlan(planID)
	if len(tasks) == 0 {
		return
	}
	for _, t := range tasks {
		if !t.Status.Satisfied() {
			return
		}
	}

	plan.Status = models.PlanStatusCompleted
	c.emit(Event{Type: EventPlanCompleted, PlanID: planID,
		Message: fmt.Sprintf("plan %q completed", plan.Name)})
	c.logger.Log("[plan %s] all tasks satisfied, assembling report", planID)

	rpt, _, err := c.aggregator.Aggregate(plan, tasks, plan.ApprovedBy)
	if err != nil {
		c.logger.Log("[plan %s] report aggregation failed: %v", planID, err)
		return
	}
	c.reports[planID] = rpt

	if c.stateDB != nil {
		if err := c.stateDB.SaveReport(rpt); err != nil {
			c.logger.Log("[plan %s] report persistence failed: %v", planID, err)
		}
	}

	c.notifier.ToRole(models.RoleManager, models.NotificationKindReportReady,
		"executive report for plan %q is ready for approval", plan.Name)
	c.emit(Event{Type: EventReportReady, PlanID: planID,
		Message: fmt.Sprintf("%d insights, confidence %.2f", len(rpt.KeyInsights), rpt.ConfidenceScore)})
	c.persistPlan(planID)
}

// persistPlan snapshots a plan and its tasks when a state database is wired.
// Persistence failures are logged, never fatal: the in-memory store remains
// authoritative.
func (c *Coordinator) persistPlan(planID string) {
	if c.stateDB == nil {
		return
	}
	plan, err := c.store.GetPlan(planID)
	if err != nil {
		return
	}
	if err := c.stateDB.SaveSnapshot(plan, c.store.TasksForPlan(planID)); err != nil {
		c.logger.Log("[plan %s] snapshot failed: %v", planID, err)
	}
}
