package workflow

import (
	"fmt"

	"github.com/taskweave/taskweave/pkg/models"
)

// peerReviewTypes lists the high-risk analysis types whose results always go
// through peer review.
var peerReviewTypes = map[models.TaskType]bool{
	models.TaskTypePredictiveModeling: true,
	models.TaskTypeTimeSeries:         true,
	models.TaskTypeAnomalyDetection:   true,
}

// peerReviewConfidence is the confidence floor below which any result goes
// to peer review regardless of type.
const peerReviewConfidence = 0.80

// RequiresPeerReview reports whether a completed task's result needs a
// senior reviewer: high-risk type, low confidence, or a junior assignee.
func RequiresPeerReview(task *models.Task, result *models.Result, assignee *models.User) bool {
	if peerReviewTypes[task.Type] {
		return true
	}
	if result != nil && result.Confidence < peerReviewConfidence {
		return true
	}
	if assignee != nil && assignee.Role == models.RoleAnalyst {
		return true
	}
	return false
}

// RoutePeerReview opens a peer-review request for a completed task, assigned
// to the least-loaded senior analyst, and moves the task into PeerReview.
func (w *Workflow) RoutePeerReview(task *models.Task) (*models.ApprovalRequest, error) {
	if task.Status != models.TaskStatusCompleted {
		return nil, fmt.Errorf("task %s is %s, only completed tasks enter peer review", task.ID, task.Status)
	}

	reviewer := w.LeastLoadedReviewer(models.RoleSeniorAnalyst, task.AssignedTo)
	if reviewer == nil {
		return nil, fmt.Errorf("no senior analyst available to review task %s", task.ID)
	}

	req, err := w.Submit(models.ApprovalKindPeerReview, task.ID, task.AssignedTo, reviewer.ID)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatusPeerReview
	return req, nil
}

// LeastLoadedReviewer returns the holder of role with the lowest current
// workload, excluding the given user ID. Ties go to the lower user ID so
// routing is deterministic. Returns nil if nobody holds the role.
func (w *Workflow) LeastLoadedReviewer(role models.Role, exclude string) *models.User {
	var best *models.User
	for _, u := range w.store.UsersByRole(role) {
		if u.ID == exclude {
			continue
		}
		if best == nil || u.Workload < best.Workload ||
			(u.Workload == best.Workload && u.ID < best.ID) {
			best = u
		}
	}
	return best
}
