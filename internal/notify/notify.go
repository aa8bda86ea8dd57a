// Package notify appends role- and user-addressed notifications emitted as
// side effects of workflow state transitions.
package notify

import (
	"fmt"

	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/pkg/models"
)

// Sink receives a copy of every dispatched notification, typically for
// display. The engine only appends; it never reads back through the sink.
type Sink interface {
	Deliver(n *models.Notification)
}

// Dispatcher records notifications in the store and forwards them to an
// optional sink.
type Dispatcher struct {
	store *store.Store
	sink  Sink
}

// New creates a dispatcher. sink may be nil.
func New(s *store.Store, sink Sink) *Dispatcher {
	return &Dispatcher{store: s, sink: sink}
}

// ToRole notifies every holder of a role through a single role-addressed record.
func (d *Dispatcher) ToRole(role models.Role, kind models.NotificationKind, format string, args ...any) *models.Notification {
	return d.dispatch(string(role), kind, format, args...)
}

// ToUser notifies a specific user.
func (d *Dispatcher) ToUser(userID string, kind models.NotificationKind, format string, args ...any) *models.Notification {
	return d.dispatch(userID, kind, format, args...)
}

func (d *Dispatcher) dispatch(recipient string, kind models.NotificationKind, format string, args ...any) *models.Notification {
	n := d.store.AppendNotification(&models.Notification{
		Recipient: recipient,
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
	})
	if d.sink != nil {
		d.sink.Deliver(n)
	}
	return n
}
