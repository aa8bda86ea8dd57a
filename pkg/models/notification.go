package models

import "time"

// NotificationKind categorizes notifications for display grouping.
type NotificationKind string

const (
	NotificationKindApprovalRequested NotificationKind = "approval_requested"
	NotificationKindReviewAssigned    NotificationKind = "review_assigned"
	NotificationKindRevisionRequested NotificationKind = "revision_requested"
	NotificationKindTaskFailed        NotificationKind = "task_failed"
	NotificationKindReportReady       NotificationKind = "report_ready"
)

// Notification is a role- or user-addressed message emitted as a side effect
// of a state transition. Append-only; only the Read flag may change.
type Notification struct {
	ID string `json:"id"`
	// Recipient is a user ID or a role name.
	Recipient string           `json:"recipient"`
	Message   string           `json:"message"`
	Kind      NotificationKind `json:"kind"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}
