// Package assign routes tasks to the best-fit worker using skill overlap
// and current workload.
package assign

import (
	"errors"
	"fmt"
	"math"

	"github.com/taskweave/taskweave/internal/graph"
	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/pkg/models"
)

// ErrNoEligibleUser indicates no candidate could take the task. The task
// stays Pending so the stall is visible rather than silent.
var ErrNoEligibleUser = errors.New("no eligible user for task")

const (
	skillWeight    = 0.7
	workloadWeight = 0.3
	// skillThreshold is the minimum skill match a candidate normally needs.
	skillThreshold = 0.5
	// scoreEpsilon treats near-identical scores as a tie, broken by workload.
	scoreEpsilon = 1e-9
)

// Assignment records a routing decision.
type Assignment struct {
	TaskID     string
	UserID     string
	Score      float64
	SkillMatch float64
	// Fallback is set when no candidate met the skill threshold and the
	// highest-scoring candidate overall was used instead.
	Fallback bool
}

// Engine scores and assigns tasks against the entity store.
type Engine struct {
	store *store.Store
	// strict disables the below-threshold fallback: with no candidate at or
	// above the skill threshold, Assign returns ErrNoEligibleUser instead.
	strict bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrict disables the skill-threshold fallback.
func WithStrict() Option {
	return func(e *Engine) { e.strict = true }
}

// New creates an assignment engine backed by the given store.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{store: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SkillMatch returns the fraction of the task's required skills the user has.
// A task with no required skills matches every user fully.
func SkillMatch(required []string, u *models.User) float64 {
	if len(required) == 0 {
		return 1.0
	}
	matched := 0
	for _, skill := range required {
		if u.HasSkill(skill) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// workloadScore maps current workload onto [0, 1]; a user with 10 or more
// open tasks scores zero.
func workloadScore(workload int) float64 {
	score := (10.0 - float64(workload)) / 10.0
	if score < 0 {
		return 0
	}
	return score
}

// Score computes the combined assignment score for a user against a task.
func Score(task *models.Task, u *models.User) float64 {
	return skillWeight*SkillMatch(task.RequiredSkills, u) + workloadWeight*workloadScore(u.Workload)
}

// Assign picks the best-fit user for a Pending task, increments their
// workload, and transitions the task to Assigned.
//
// Candidates are users with an assignable role (never managers) and spare
// capacity. Candidates below the skill threshold are excluded unless nobody
// meets it, in which case the highest-scoring candidate overall is used and
// the assignment is marked as a fallback.
func (e *Engine) Assign(task *models.Task) (*Assignment, error) {
	if task.Status != models.TaskStatusPending {
		return nil, fmt.Errorf("task %s is %s, only pending tasks can be assigned", task.ID, task.Status)
	}

	var eligible []*models.User
	for _, u := range e.store.ListUsers() {
		if u.Role.Assignable() && u.HasCapacity() {
			eligible = append(eligible, u)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("task %s: %w", task.ID, ErrNoEligibleUser)
	}

	best := pickBest(task, eligible, true)
	fallback := false
	if best == nil {
		if e.strict {
			return nil, fmt.Errorf("task %s: no candidate meets the skill threshold: %w", task.ID, ErrNoEligibleUser)
		}
		best = pickBest(task, eligible, false)
		fallback = true
	}

	if err := e.store.IncrementWorkload(best.ID); err != nil {
		return nil, fmt.Errorf("assign task %s: %w", task.ID, err)
	}
	task.AssignedTo = best.ID
	task.Status = models.TaskStatusAssigned

	return &Assignment{
		TaskID:     task.ID,
		UserID:     best.ID,
		Score:      Score(task, best),
		SkillMatch: SkillMatch(task.RequiredSkills, best),
		Fallback:   fallback,
	}, nil
}

// pickBest returns the highest-scoring candidate, optionally requiring the
// skill threshold. Ties go to the lower workload, then the lower ID.
func pickBest(task *models.Task, candidates []*models.User, applyThreshold bool) *models.User {
	var best *models.User
	var bestScore float64
	for _, u := range candidates {
		if applyThreshold && SkillMatch(task.RequiredSkills, u) < skillThreshold {
			continue
		}
		score := Score(task, u)
		if best == nil {
			best, bestScore = u, score
			continue
		}
		diff := score - bestScore
		switch {
		case diff > scoreEpsilon:
			best, bestScore = u, score
		case math.Abs(diff) <= scoreEpsilon:
			if u.Workload < best.Workload || (u.Workload == best.Workload && u.ID < best.ID) {
				best, bestScore = u, score
			}
		}
	}
	return best
}

// AutoAssignReady assigns every ready task in the graph that does not already
// have an assignee. Tasks carrying open gate or review issues are skipped:
// they wait for revised work to be resubmitted, not for a scheduler pass.
// Tasks that cannot be assigned are left Pending and reported; the pass is
// idempotent because only Pending tasks are touched.
func (e *Engine) AutoAssignReady(g *graph.DependencyGraph) ([]*Assignment, []error) {
	var made []*Assignment
	var failures []error
	for _, task := range g.Ready() {
		if len(task.GateIssues) > 0 {
			continue
		}
		a, err := e.Assign(task)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		made = append(made, a)
	}
	return made, failures
}
