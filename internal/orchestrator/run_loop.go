package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/internal/workflow"
	"github.com/taskweave/taskweave/pkg/models"
)

// pollInterval is the idle delay between scheduling passes.
const pollInterval = 10 * time.Millisecond

// ExecutePlan runs an active plan to quiescence: it assigns ready tasks,
// dispatches them to the worker pool, and applies the quality gate and
// peer-review routing to each completion. It returns when no task can make
// further progress without an external decision, which covers three cases:
// every task satisfied (the plan completes), tasks waiting on peer review,
// or pending tasks with no eligible user.
func (c *Coordinator) ExecutePlan(ctx context.Context, planID string) error {
	plan, err := c.store.GetPlan(planID)
	if err != nil {
		return err
	}
	if plan.Status != models.PlanStatusActive {
		return fmt.Errorf("plan %s is %s, only active plans execute", planID, plan.Status)
	}

	pool := NewPool(PoolConfig{
		Executor:    c.executor,
		Workers:     c.cfg.Workers.Count,
		TaskTimeout: c.cfg.Workers.TaskTimeout,
		OnStart:     func(taskID string) { c.markExecuting(planID, taskID) },
	})
	pool.Start()

	c.mu.Lock()
	c.pool = pool
	c.mu.Unlock()

	defer func() {
		pool.Stop()
		c.drainCompletions(planID, pool)
		c.mu.Lock()
		c.pool = nil
		c.mu.Unlock()
		c.persistPlan(planID)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case comp := <-pool.Completions():
			c.handleCompletion(planID, comp)

		default:
			c.mu.Lock()
			c.assignReadyLocked(planID)
			batch := c.collectDispatchableLocked(pool, planID)
			c.mu.Unlock()

			dispatched := 0
			for _, t := range batch {
				// Drain outcomes before each submission: Submit blocks on a
				// full job queue, and workers stop draining it if the
				// completion buffer fills up too.
				c.drainCompletions(planID, pool)
				if err := pool.Submit(t); err != nil {
					c.logger.Log("[task %s] submit failed: %v", t.ID, err)
					continue
				}
				c.logger.Log("[task %s] dispatched to pool", t.ID)
				dispatched++
			}
			if dispatched > 0 {
				continue
			}
			if pool.Inflight() == 0 {
				return c.finishRun(planID)
			}

			// Nothing to dispatch, wait for a completion
			select {
			case <-ctx.Done():
				return ctx.Err()
			case comp := <-pool.Completions():
				c.handleCompletion(planID, comp)
			case <-time.After(pollInterval):
			}
		}
	}
}

// collectDispatchableLocked flips assigned tasks to InProgress and returns
// every task owed a pool submission. Tasks stuck in InProgress from an
// interrupted run are included for resubmission. Submission itself must
// happen after the coordinator lock is released: Submit blocks when the job
// queue is full, and the workers draining it need the same lock to mark
// tasks Executing.
func (c *Coordinator) collectDispatchableLocked(pool *Pool, planID string) []*models.Task {
	var batch []*models.Task
	for _, t := range c.store.TasksForPlan(planID) {
		switch t.Status {
		case models.TaskStatusAssigned:
			t.Status = models.TaskStatusInProgress
		case models.TaskStatusInProgress:
			if pool.Contains(t.ID) {
				continue
			}
		default:
			continue
		}
		batch = append(batch, t)
	}
	return batch
}

// markExecuting flips a task to Executing when a worker picks it up.
// Called from worker goroutines.
func (c *Coordinator) markExecuting(planID, taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.store.GetTask(taskID)
	if err != nil || t.Status != models.TaskStatusInProgress {
		return
	}
	now := time.Now()
	t.Status = models.TaskStatusExecuting
	t.StartedAt = &now
	c.emit(Event{Type: EventTaskStarted, PlanID: planID, TaskID: taskID, UserID: t.AssignedTo,
		Message: fmt.Sprintf("task %q started", t.Name)})
}

// handleCompletion applies one execution outcome: failure finalizes the
// task, success runs the quality gate and routes the result onward.
func (c *Coordinator) handleCompletion(planID string, comp Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.store.GetTask(comp.TaskID)
	if err != nil {
		c.logger.Log("[task %s] completion for unknown task: %v", comp.TaskID, err)
		return
	}
	if t.Status != models.TaskStatusExecuting {
		return
	}

	now := time.Now()
	assigneeID := t.AssignedTo

	if comp.Err != nil {
		t.Status = models.TaskStatusFailed
		t.Error = comp.Err.Error()
		t.CompletedAt = &now
		c.releaseWorkload(assigneeID)
		c.notifier.ToRole(models.RoleManager, models.NotificationKindTaskFailed,
			"task %q failed: %v", t.Name, comp.Err)
		c.logger.Log("[task %s] failed: %v", t.ID, comp.Err)
		c.emit(Event{Type: EventTaskFailed, PlanID: planID, TaskID: t.ID, UserID: assigneeID, Err: comp.Err,
			Message: fmt.Sprintf("task %q failed: %v", t.Name, comp.Err)})
		return
	}

	t.Status = models.TaskStatusCompleted
	t.Result = comp.Result
	t.CompletedAt = &now
	c.releaseWorkload(assigneeID)
	c.emit(Event{Type: EventTaskCompleted, PlanID: planID, TaskID: t.ID, UserID: assigneeID,
		Message: fmt.Sprintf("task %q completed with confidence %.2f", t.Name, comp.Result.Confidence)})

	passed, issues := c.gate.Evaluate(comp.Result)
	if !passed {
		t.GateIssues = issues
		t.Status = models.TaskStatusPending
		t.AssignedTo = ""
		c.logger.Log("[task %s] failed quality gate: %v", t.ID, issues)
		c.emit(Event{Type: EventGateFailed, PlanID: planID, TaskID: t.ID,
			Message: fmt.Sprintf("task %q failed the quality gate with %d issues", t.Name, len(issues))})
		return
	}
	t.GateIssues = nil

	assignee, _ := c.store.GetUser(assigneeID)
	if workflow.RequiresPeerReview(t, comp.Result, assignee) {
		if _, err := c.workflow.RoutePeerReview(t); err != nil {
			c.logger.Log("[task %s] peer review routing failed: %v", t.ID, err)
			return
		}
		c.logger.Log("[task %s] routed to peer review", t.ID)
		c.emit(Event{Type: EventPeerReviewRequested, PlanID: planID, TaskID: t.ID, UserID: assigneeID,
			Message: fmt.Sprintf("task %q routed to peer review", t.Name)})
		return
	}

	t.Status = models.TaskStatusApproved
	c.emit(Event{Type: EventTaskApproved, PlanID: planID, TaskID: t.ID, UserID: assigneeID,
		Message: fmt.Sprintf("task %q approved", t.Name)})
	c.maybeCompletePlanLocked(planID)
}

// releaseWorkload frees the assignee's slot once execution finished, in
// either direction.
func (c *Coordinator) releaseWorkload(userID string) {
	if userID == "" {
		return
	}
	if err := c.store.DecrementWorkload(userID); err != nil {
		c.logger.Log("workload decrement for %s failed: %v", userID, err)
	}
}

// drainCompletions consumes every already-buffered outcome without blocking.
// Used between submissions to keep workers from stalling on a full outcome
// buffer, and after Stop so cancelled executions still finalize their tasks.
func (c *Coordinator) drainCompletions(planID string, pool *Pool) {
	for {
		select {
		case comp := <-pool.Completions():
			c.handleCompletion(planID, comp)
		default:
			return
		}
	}
}

// finishRun reports why the run loop went quiescent.
func (c *Coordinator) finishRun(planID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeCompletePlanLocked(planID)

	var stalled, rework, inReview int
	for _, t := range c.store.TasksForPlan(planID) {
		switch t.Status {
		case models.TaskStatusPending:
			if len(t.GateIssues) > 0 {
				rework++
			} else {
				stalled++
			}
		case models.TaskStatusPeerReview:
			inReview++
		}
	}
	if inReview > 0 {
		c.logger.Log("[plan %s] run quiescent: %d tasks awaiting peer review", planID, inReview)
	}
	if rework > 0 {
		c.logger.Log("[plan %s] run quiescent: %d tasks awaiting rework", planID, rework)
	}
	if stalled > 0 {
		c.logger.Log("[plan %s] run quiescent: %d tasks pending with no eligible user", planID, stalled)
		c.emit(Event{Type: EventPlanStalled, PlanID: planID,
			Message: fmt.Sprintf("%d tasks pending with no eligible user", stalled)})
	}
	return nil
}
