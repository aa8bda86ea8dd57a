// Package orchestrator coordinates plan execution: assignment, the worker
// pool, the quality gate, and approval side effects.
package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType represents the type of coordinator event.
type EventType string

const (
	// EventPlanSubmitted is emitted when a plan enters the approval queue.
	EventPlanSubmitted EventType = "plan_submitted"
	// EventPlanApproved is emitted when a manager activates a plan.
	EventPlanApproved EventType = "plan_approved"
	// EventPlanRejected is emitted when a manager rejects a plan.
	EventPlanRejected EventType = "plan_rejected"
	// EventTaskAssigned is emitted when the assignment engine routes a task.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskStarted is emitted when a worker begins executing a task.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted is emitted when execution finishes with a result.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed is emitted when execution fails or is cancelled.
	EventTaskFailed EventType = "task_failed"
	// EventGateFailed is emitted when a result fails the quality gate.
	EventGateFailed EventType = "gate_failed"
	// EventPeerReviewRequested is emitted when a result is routed to a senior reviewer.
	EventPeerReviewRequested EventType = "peer_review_requested"
	// EventTaskApproved is emitted when a task reaches its terminal success state.
	EventTaskApproved EventType = "task_approved"
	// EventRevisionRequested is emitted when a reviewer sends a task back.
	EventRevisionRequested EventType = "revision_requested"
	// EventPlanStalled is emitted when pending tasks exist but none can be assigned.
	EventPlanStalled EventType = "plan_stalled"
	// EventPlanCompleted is emitted when every task reaches a terminal success state.
	EventPlanCompleted EventType = "plan_completed"
	// EventReportReady is emitted when the executive report enters the approval queue.
	EventReportReady EventType = "report_ready"
)

// Event represents a state change emitted by the coordinator. Events are
// advisory: consumers that fall behind may miss them, the store is the
// source of truth.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// PlanID is the ID of the related plan.
	PlanID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// UserID is the ID of the related user, if applicable.
	UserID string
	// Message provides additional context about the event.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter handles event emission for the coordinator.
// It provides a simple, thread-safe way to emit events to subscribers.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	// Give the receiver a short window to drain before dropping
	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
// This should be called when the coordinator is stopped.
func (e *EventEmitter) Close() {
	close(e.events)
}
