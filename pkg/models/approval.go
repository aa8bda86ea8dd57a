package models

import "time"

// ApprovalKind identifies what an approval request is gating.
type ApprovalKind string

const (
	// ApprovalKindPlan gates plan activation. Reviewed by managers.
	ApprovalKindPlan ApprovalKind = "plan"
	// ApprovalKindPeerReview gates a task result. Reviewed by senior analysts.
	ApprovalKindPeerReview ApprovalKind = "peer_review"
	// ApprovalKindFinalReport gates the executive report. Reviewed by managers.
	ApprovalKindFinalReport ApprovalKind = "final_report"
)

// Valid returns true if the kind is a known value.
func (k ApprovalKind) Valid() bool {
	switch k {
	case ApprovalKindPlan, ApprovalKindPeerReview, ApprovalKindFinalReport:
		return true
	default:
		return false
	}
}

// ReviewerRole returns the role whose queue this kind of request lands in.
func (k ApprovalKind) ReviewerRole() Role {
	if k == ApprovalKindPeerReview {
		return RoleSeniorAnalyst
	}
	return RoleManager
}

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending       ApprovalStatus = "pending"
	ApprovalStatusApproved      ApprovalStatus = "approved"
	ApprovalStatusRejected      ApprovalStatus = "rejected"
	ApprovalStatusNeedsRevision ApprovalStatus = "needs_revision"
)

// Valid returns true if the status is a known value.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusNeedsRevision:
		return true
	default:
		return false
	}
}

// Terminal returns true if the decision is final. Terminal requests are
// immutable; attempts to re-resolve them are rejected.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// Comment is a reviewer or submitter note on an approval request.
type Comment struct {
	Author string    `json:"author"`
	Body   string    `json:"body"`
	At     time.Time `json:"at"`
}

// ApprovalRequest is a generic human-decision record gating a plan, a task
// result, or the final report.
type ApprovalRequest struct {
	// ID is the unique identifier for this request.
	ID string `json:"id"`
	// Kind identifies what is being gated.
	Kind ApprovalKind `json:"kind"`
	// SubjectID is the plan or task ID under review.
	SubjectID string `json:"subject_id"`
	// Submitter is the user who submitted the work.
	Submitter string `json:"submitter,omitempty"`
	// Reviewer is the user who claimed the review, empty until claimed.
	Reviewer string `json:"reviewer,omitempty"`
	// Status is the current decision state.
	Status ApprovalStatus `json:"status"`
	// Comments holds the review discussion in order.
	Comments []Comment `json:"comments,omitempty"`
	// Resubmitted is set once a NeedsRevision request cycles back to Pending.
	// A request may be resubmitted exactly once per revision.
	Resubmitted bool `json:"resubmitted,omitempty"`
	// SubmittedAt is when the request was created.
	SubmittedAt time.Time `json:"submitted_at"`
	// ReviewedAt is when the decision was made, if it has been.
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}
