// Package graph resolves task dependencies for a plan.
// Tasks are nodes, and edges represent "blocked by" relationships.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/taskweave/taskweave/pkg/models"
)

// CycleError indicates a circular dependency was found in the task graph.
// It carries the IDs of the tasks that could not be ordered.
type CycleError struct {
	// Unresolved lists the task IDs participating in or downstream of a cycle.
	Unresolved []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected among tasks: %s", strings.Join(e.Unresolved, ", "))
}

// DependencyGraph is a directed acyclic graph of task dependencies.
type DependencyGraph struct {
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*models.Task),
		edges: make(map[string][]string),
	}
}

// Build constructs the graph from a slice of tasks. Returns an error if a
// dependency references an unknown task or the graph contains a cycle.
// Cycle detection happens here, at plan-activation time, so a bad plan
// fails loudly instead of silently dropping tasks from the order.
func Build(tasks []*models.Task) (*DependencyGraph, error) {
	g := New()

	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return nil, fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if _, err := g.TopologicalOrder(); err != nil {
		return nil, err
	}
	return g, nil
}

// TopologicalOrder returns the graph's tasks with every dependency before its
// dependents. The order is deterministic: among tasks whose dependencies are
// all placed, higher priority goes first, then earlier creation time, then ID.
// Returns a CycleError naming the unplaceable tasks if the graph has a cycle.
func (g *DependencyGraph) TopologicalOrder() ([]*models.Task, error) {
	// Kahn's algorithm over remaining in-degrees, with a sorted frontier
	// for stable output.
	indegree := make(map[string]int, len(g.nodes))
	for id, deps := range g.edges {
		indegree[id] = len(deps)
	}

	var frontier []*models.Task
	for id, task := range g.nodes {
		if indegree[id] == 0 {
			frontier = append(frontier, task)
		}
	}

	order := make([]*models.Task, 0, len(g.nodes))
	for len(frontier) > 0 {
		sortTasks(frontier)
		next := frontier[0]
		frontier = frontier[1:]
		order = append(order, next)

		for _, depID := range g.Dependents(next.ID) {
			indegree[depID]--
			if indegree[depID] == 0 {
				frontier = append(frontier, g.nodes[depID])
			}
		}
	}

	if len(order) != len(g.nodes) {
		placed := make(map[string]bool, len(order))
		for _, t := range order {
			placed[t.ID] = true
		}
		var unresolved []string
		for id := range g.nodes {
			if !placed[id] {
				unresolved = append(unresolved, id)
			}
		}
		sort.Strings(unresolved)
		return nil, &CycleError{Unresolved: unresolved}
	}

	return order, nil
}

// Ready returns every Pending task whose dependencies have all reached a
// satisfied state (Completed or Approved). Output order is deterministic.
func (g *DependencyGraph) Ready() []*models.Task {
	var ready []*models.Task
	for id, task := range g.nodes {
		if task.Status != models.TaskStatusPending {
			continue
		}

		satisfied := true
		for _, depID := range g.edges[id] {
			dep, exists := g.nodes[depID]
			if !exists || !dep.Status.Satisfied() {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, task)
		}
	}
	sortTasks(ready)
	return ready
}

// Task returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) Task(id string) *models.Task {
	return g.nodes[id]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.nodes)
}

// Dependencies returns the IDs of tasks the given task depends on.
func (g *DependencyGraph) Dependencies(id string) []string {
	return g.edges[id]
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) Dependents(id string) []string {
	var dependents []string
	for nodeID, deps := range g.edges {
		for _, depID := range deps {
			if depID == id {
				dependents = append(dependents, nodeID)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// AllSatisfied returns true if every task in the graph has reached a
// satisfied state. Used to decide when a plan is ready for aggregation.
func (g *DependencyGraph) AllSatisfied() bool {
	for _, task := range g.nodes {
		if !task.Status.Satisfied() {
			return false
		}
	}
	return true
}

// AllTerminal returns true if every task is either satisfied or failed,
// meaning no further execution is possible.
func (g *DependencyGraph) AllTerminal() bool {
	for _, task := range g.nodes {
		if !task.Status.Satisfied() && task.Status != models.TaskStatusFailed {
			return false
		}
	}
	return true
}

// sortTasks orders tasks by priority descending, then creation time
// ascending, then ID for a total order.
func sortTasks(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
