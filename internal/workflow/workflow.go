// Package workflow implements the approval state machine shared by plan
// activation, peer review, and final-report sign-off. One generic machine,
// parameterized by kind, governs every request: the kind decides which
// role's queue the request lands in, and the terminal-state rules are
// identical across kinds.
package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/pkg/models"
)

// ErrApprovalConflict indicates an attempt to resolve a request that has
// already reached a terminal decision. The original decision stands.
var ErrApprovalConflict = errors.New("approval request already resolved")

// ErrWrongReviewerRole indicates the acting user does not hold the role that
// owns this kind of request.
var ErrWrongReviewerRole = errors.New("reviewer role does not match request kind")

// Decision is a reviewer's verdict on a pending request.
type Decision string

const (
	DecisionApprove       Decision = "approve"
	DecisionReject        Decision = "reject"
	DecisionNeedsRevision Decision = "needs_revision"
)

// Workflow manages approval requests across all kinds. Queue mutations run
// under a single lock; contention is human-paced, so one lock is enough.
type Workflow struct {
	mu       sync.Mutex
	store    *store.Store
	notifier *notify.Dispatcher
}

// New creates a workflow over the given store and notifier.
func New(s *store.Store, n *notify.Dispatcher) *Workflow {
	return &Workflow{store: s, notifier: n}
}

// Submit opens a request of the given kind and notifies the owning role's
// queue. reviewer may be pre-set (peer reviews are routed at submission);
// leave it empty to let any role holder claim the request.
func (w *Workflow) Submit(kind models.ApprovalKind, subjectID, submitter, reviewer string) (*models.ApprovalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if open := w.store.PendingApprovalForSubject(kind, subjectID); open != nil {
		return nil, fmt.Errorf("subject %s already has an open %s request %s", subjectID, kind, open.ID)
	}

	req, err := w.store.CreateApproval(&models.ApprovalRequest{
		Kind:      kind,
		SubjectID: subjectID,
		Submitter: submitter,
		Reviewer:  reviewer,
	})
	if err != nil {
		return nil, err
	}

	if reviewer != "" {
		w.notifier.ToUser(reviewer, models.NotificationKindReviewAssigned,
			"%s review assigned: subject %s", kind, subjectID)
	} else {
		w.notifier.ToRole(kind.ReviewerRole(), models.NotificationKindApprovalRequested,
			"%s approval requested for %s", kind, subjectID)
	}
	return req, nil
}

// Queue returns the pending requests a role holder can act on, oldest first.
func (w *Workflow) Queue(role models.Role) []*models.ApprovalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []*models.ApprovalRequest
	for _, kind := range []models.ApprovalKind{models.ApprovalKindPlan, models.ApprovalKindPeerReview, models.ApprovalKindFinalReport} {
		if kind.ReviewerRole() != role {
			continue
		}
		for _, req := range w.store.ApprovalsByKind(kind) {
			if req.Status == models.ApprovalStatusPending {
				out = append(out, req)
			}
		}
	}
	return out
}

// Claim records a reviewer on a pending request. The reviewer must hold the
// role that owns the request's kind.
func (w *Workflow) Claim(requestID, reviewerID string) (*models.ApprovalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	req, err := w.store.GetApproval(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("claim %s: %w", requestID, ErrApprovalConflict)
	}
	if err := w.checkReviewer(req, reviewerID); err != nil {
		return nil, err
	}
	req.Reviewer = reviewerID
	return req, nil
}

// Decide resolves a pending request. Terminal requests are immutable:
// deciding them again returns ErrApprovalConflict and the original decision
// stands.
func (w *Workflow) Decide(requestID, reviewerID string, decision Decision, comment string) (*models.ApprovalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	req, err := w.store.GetApproval(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("decide %s: %w", requestID, ErrApprovalConflict)
	}
	if req.Status != models.ApprovalStatusPending {
		return nil, fmt.Errorf("request %s is %s, only pending requests can be decided", requestID, req.Status)
	}
	if err := w.checkReviewer(req, reviewerID); err != nil {
		return nil, err
	}

	switch decision {
	case DecisionApprove:
		req.Status = models.ApprovalStatusApproved
	case DecisionReject:
		req.Status = models.ApprovalStatusRejected
	case DecisionNeedsRevision:
		req.Status = models.ApprovalStatusNeedsRevision
	default:
		return nil, fmt.Errorf("unknown decision %q", decision)
	}

	req.Reviewer = reviewerID
	now := time.Now()
	req.ReviewedAt = &now
	if comment != "" {
		req.Comments = append(req.Comments, models.Comment{Author: reviewerID, Body: comment, At: now})
	}
	return req, nil
}

// Resubmit cycles a NeedsRevision request back to Pending. Each revision
// round allows exactly one resubmission.
func (w *Workflow) Resubmit(requestID, submitter, comment string) (*models.ApprovalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	req, err := w.store.GetApproval(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("resubmit %s: %w", requestID, ErrApprovalConflict)
	}
	if req.Status != models.ApprovalStatusNeedsRevision {
		return nil, fmt.Errorf("request %s is %s, only needs_revision requests can be resubmitted", requestID, req.Status)
	}
	if req.Resubmitted {
		return nil, fmt.Errorf("request %s was already resubmitted once", requestID)
	}

	req.Status = models.ApprovalStatusPending
	req.Resubmitted = true
	req.ReviewedAt = nil
	if comment != "" {
		req.Comments = append(req.Comments, models.Comment{Author: submitter, Body: comment, At: time.Now()})
	}

	if req.Reviewer != "" {
		w.notifier.ToUser(req.Reviewer, models.NotificationKindReviewAssigned,
			"%s review resubmitted: subject %s", req.Kind, req.SubjectID)
	} else {
		w.notifier.ToRole(req.Kind.ReviewerRole(), models.NotificationKindApprovalRequested,
			"%s approval resubmitted for %s", req.Kind, req.SubjectID)
	}
	return req, nil
}

// checkReviewer verifies the acting user holds the owning role and is not
// reviewing their own submission.
func (w *Workflow) checkReviewer(req *models.ApprovalRequest, reviewerID string) error {
	u, err := w.store.GetUser(reviewerID)
	if err != nil {
		return err
	}
	if u.Role != req.Kind.ReviewerRole() {
		return fmt.Errorf("user %s holds %s: %w", reviewerID, u.Role, ErrWrongReviewerRole)
	}
	if req.Submitter != "" && req.Submitter == reviewerID {
		return fmt.Errorf("user %s cannot review their own submission", reviewerID)
	}
	return nil
}
