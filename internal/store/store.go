// Package store is the in-memory entity repository for the engine.
// It is the single source of truth for users, tasks, plans, approval
// requests, and notifications, and owns identity assignment.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/models"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Store holds all engine entities keyed by ID. Each entity type has a
// single-writer discipline: mutations go through Store methods under the
// type's mutex, never through shared pointers.
type Store struct {
	usersMu sync.RWMutex
	users   map[string]*models.User

	tasksMu sync.RWMutex
	tasks   map[string]*models.Task

	plansMu sync.RWMutex
	plans   map[string]*models.Plan

	approvalsMu sync.RWMutex
	approvals   map[string]*models.ApprovalRequest

	notifsMu sync.RWMutex
	notifs   []*models.Notification
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]*models.User),
		tasks:     make(map[string]*models.Task),
		plans:     make(map[string]*models.Plan),
		approvals: make(map[string]*models.ApprovalRequest),
	}
}

// newID returns a short unique identifier.
func newID() string {
	return uuid.New().String()[:8]
}

// AddUser registers a user, assigning an ID if one is not set.
func (s *Store) AddUser(u *models.User) (*models.User, error) {
	if !u.Role.Valid() {
		return nil, &models.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", u.Role)}
	}
	if u.MaxWorkload <= 0 {
		return nil, &models.ValidationError{Field: "max_workload", Reason: "must be positive"}
	}

	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	if u.ID == "" {
		u.ID = newID()
	}
	s.users[u.ID] = u
	return u, nil
}

// GetUser returns the user with the given ID.
func (s *Store) GetUser(id string) (*models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

// ListUsers returns all users in a stable order.
func (s *Store) ListUsers() []*models.User {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UsersByRole returns all users with the given role in a stable order.
func (s *Store) UsersByRole(role models.Role) []*models.User {
	var out []*models.User
	for _, u := range s.ListUsers() {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out
}

// IncrementWorkload adds one to the user's workload, enforcing the
// workload <= max_workload invariant. Workload mutations are serialized
// under the users mutex so concurrent assignment and completion cannot
// lose updates.
func (s *Store) IncrementWorkload(userID string) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if u.Workload >= u.MaxWorkload {
		return fmt.Errorf("user %s is at max workload %d", userID, u.MaxWorkload)
	}
	u.Workload++
	return nil
}

// DecrementWorkload subtracts one from the user's workload, flooring at zero.
func (s *Store) DecrementWorkload(userID string) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if u.Workload > 0 {
		u.Workload--
	}
	return nil
}

// CreatePlan registers a plan in Draft status, assigning an ID.
func (s *Store) CreatePlan(p *models.Plan) (*models.Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.plansMu.Lock()
	defer s.plansMu.Unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Status == "" {
		p.Status = models.PlanStatusDraft
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.plans[p.ID] = p
	return p, nil
}

// GetPlan returns the plan with the given ID.
func (s *Store) GetPlan(id string) (*models.Plan, error) {
	s.plansMu.RLock()
	defer s.plansMu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// ListPlans returns all plans in creation order.
func (s *Store) ListPlans() []*models.Plan {
	s.plansMu.RLock()
	defer s.plansMu.RUnlock()
	out := make([]*models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CreateTask registers a task under its plan, assigning an ID.
func (s *Store) CreateTask(t *models.Task) (*models.Task, error) {
	if t.Name == "" {
		return nil, &models.ValidationError{Field: "name", Reason: "task name is required"}
	}
	if !t.Type.Valid() {
		return nil, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", t.Type)}
	}
	if err := t.ValidateParams(); err != nil {
		return nil, err
	}

	s.tasksMu.Lock()
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if t.Priority == 0 {
		t.Priority = 3
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.tasks[t.ID] = t
	s.tasksMu.Unlock()

	if t.PlanID != "" {
		s.plansMu.Lock()
		if p, ok := s.plans[t.PlanID]; ok {
			p.TaskIDs = append(p.TaskIDs, t.ID)
		}
		s.plansMu.Unlock()
	}
	return t, nil
}

// GetTask returns the task with the given ID.
func (s *Store) GetTask(id string) (*models.Task, error) {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// TasksForPlan returns the plan's tasks in creation order.
func (s *Store) TasksForPlan(planID string) []*models.Task {
	s.plansMu.RLock()
	p, ok := s.plans[planID]
	s.plansMu.RUnlock()
	if !ok {
		return nil
	}

	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()
	out := make([]*models.Task, 0, len(p.TaskIDs))
	for _, id := range p.TaskIDs {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// CreateApproval registers an approval request in Pending status.
func (s *Store) CreateApproval(a *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	if !a.Kind.Valid() {
		return nil, &models.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown approval kind %q", a.Kind)}
	}
	if a.SubjectID == "" {
		return nil, &models.ValidationError{Field: "subject_id", Reason: "subject is required"}
	}

	s.approvalsMu.Lock()
	defer s.approvalsMu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.Status == "" {
		a.Status = models.ApprovalStatusPending
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now()
	}
	s.approvals[a.ID] = a
	return a, nil
}

// GetApproval returns the approval request with the given ID.
func (s *Store) GetApproval(id string) (*models.ApprovalRequest, error) {
	s.approvalsMu.RLock()
	defer s.approvalsMu.RUnlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// ApprovalsByKind returns requests of the given kind, pending first, in
// submission order.
func (s *Store) ApprovalsByKind(kind models.ApprovalKind) []*models.ApprovalRequest {
	s.approvalsMu.RLock()
	defer s.approvalsMu.RUnlock()
	var out []*models.ApprovalRequest
	for _, a := range s.approvals {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Status == models.ApprovalStatusPending) != (out[j].Status == models.ApprovalStatusPending) {
			return out[i].Status == models.ApprovalStatusPending
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// PendingApprovalForSubject returns the open request for a subject and kind,
// or nil if none exists.
func (s *Store) PendingApprovalForSubject(kind models.ApprovalKind, subjectID string) *models.ApprovalRequest {
	s.approvalsMu.RLock()
	defer s.approvalsMu.RUnlock()
	for _, a := range s.approvals {
		if a.Kind == kind && a.SubjectID == subjectID && !a.Status.Terminal() {
			return a
		}
	}
	return nil
}

// AppendNotification records a notification. Notifications are append-only.
func (s *Store) AppendNotification(n *models.Notification) *models.Notification {
	s.notifsMu.Lock()
	defer s.notifsMu.Unlock()
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notifs = append(s.notifs, n)
	return n
}

// NotificationsFor returns notifications addressed to the given recipient
// (a user ID or role name), oldest first.
func (s *Store) NotificationsFor(recipient string) []*models.Notification {
	s.notifsMu.RLock()
	defer s.notifsMu.RUnlock()
	var out []*models.Notification
	for _, n := range s.notifs {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

// MarkNotificationRead flips the read flag, the only mutation notifications allow.
func (s *Store) MarkNotificationRead(id string) error {
	s.notifsMu.Lock()
	defer s.notifsMu.Unlock()
	for _, n := range s.notifs {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, ErrNotFound)
}
