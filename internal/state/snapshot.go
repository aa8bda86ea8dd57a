package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/internal/report"
	"github.com/taskweave/taskweave/pkg/models"
)

// SavePlan upserts a plan. The full plan is stored as a JSON payload so
// loads reproduce exactly what was saved; the indexed columns exist for
// querying without decoding.
func (db *DB) SavePlan(p *models.Plan) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", p.ID, err)
	}

	_, err = db.Exec(`
		INSERT INTO plans (id, name, status, approved_by, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			approved_by = excluded.approved_by,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, string(p.Status), p.ApprovedBy, string(payload),
		formatTime(p.CreatedAt), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save plan %s: %w", p.ID, err)
	}
	return nil
}

// GetPlan retrieves a plan by ID. Returns nil without error when no plan
// with that ID was saved.
func (db *DB) GetPlan(id string) (*models.Plan, error) {
	row := db.QueryRow("SELECT payload FROM plans WHERE id = ?", id)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", id, err)
	}

	var p models.Plan
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	return &p, nil
}

// ListPlans lists saved plans, optionally filtered by status, most recently
// created first.
func (db *DB) ListPlans(status *models.PlanStatus) ([]*models.Plan, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(
			"SELECT payload FROM plans WHERE status = ? ORDER BY created_at DESC",
			string(*status))
	} else {
		rows, err = db.Query("SELECT payload FROM plans ORDER BY created_at DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		var p models.Plan
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
		plans = append(plans, &p)
	}
	return plans, rows.Err()
}

// SaveTask upserts a task, including its result when present.
func (db *DB) SaveTask(t *models.Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}

	_, err = db.Exec(`
		INSERT INTO tasks (id, plan_id, name, type, status, assigned_to, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plan_id = excluded.plan_id,
			name = excluded.name,
			type = excluded.type,
			status = excluded.status,
			assigned_to = excluded.assigned_to,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, t.ID, t.PlanID, t.Name, string(t.Type), string(t.Status), t.AssignedTo,
		string(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil without error when absent.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow("SELECT payload FROM tasks WHERE id = ?", id)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	var t models.Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

// TasksForPlan returns the saved tasks of a plan ordered by ID.
func (db *DB) TasksForPlan(planID string) ([]*models.Task, error) {
	rows, err := db.Query("SELECT payload FROM tasks WHERE plan_id = ? ORDER BY id", planID)
	if err != nil {
		return nil, fmt.Errorf("tasks for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t models.Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// SaveSnapshot persists a plan together with all of its tasks in a single
// transaction. Either everything lands or nothing does.
func (db *DB) SaveSnapshot(p *models.Plan, tasks []*models.Task) error {
	planPayload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", p.ID, err)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		_, err := tx.Exec(`
			INSERT INTO plans (id, name, status, approved_by, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				status = excluded.status,
				approved_by = excluded.approved_by,
				payload = excluded.payload,
				updated_at = excluded.updated_at
		`, p.ID, p.Name, string(p.Status), p.ApprovedBy, string(planPayload),
			formatTime(p.CreatedAt), now)
		if err != nil {
			return fmt.Errorf("save plan %s: %w", p.ID, err)
		}

		for _, t := range tasks {
			payload, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("encode task %s: %w", t.ID, err)
			}
			_, err = tx.Exec(`
				INSERT INTO tasks (id, plan_id, name, type, status, assigned_to, payload, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					plan_id = excluded.plan_id,
					name = excluded.name,
					type = excluded.type,
					status = excluded.status,
					assigned_to = excluded.assigned_to,
					payload = excluded.payload,
					updated_at = excluded.updated_at
			`, t.ID, t.PlanID, t.Name, string(t.Type), string(t.Status),
				t.AssignedTo, string(payload), now)
			if err != nil {
				return fmt.Errorf("save task %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// LoadSnapshot reloads a plan and its tasks.
func (db *DB) LoadSnapshot(planID string) (*models.Plan, []*models.Task, error) {
	p, err := db.GetPlan(planID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, fmt.Errorf("plan %s not found", planID)
	}
	tasks, err := db.TasksForPlan(planID)
	if err != nil {
		return nil, nil, err
	}
	return p, tasks, nil
}

// SaveReport stores the executive report for a plan, replacing any earlier
// version.
func (db *DB) SaveReport(r *report.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report for plan %s: %w", r.PlanID, err)
	}

	_, err = db.Exec(`
		INSERT INTO reports (plan_id, payload, generated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			payload = excluded.payload,
			generated_at = excluded.generated_at
	`, r.PlanID, string(payload), formatTime(r.GeneratedAt))
	if err != nil {
		return fmt.Errorf("save report for plan %s: %w", r.PlanID, err)
	}
	return nil
}

// GetReport retrieves the stored report for a plan, or nil if none exists.
func (db *DB) GetReport(planID string) (*report.Report, error) {
	row := db.QueryRow("SELECT payload FROM reports WHERE plan_id = ?", planID)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report for plan %s: %w", planID, err)
	}

	var r report.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode report for plan %s: %w", planID, err)
	}
	return &r, nil
}
