package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/workflow"
	"github.com/buildrite/siteops/libs/db"
)

// TaskRepository persists tasks together with their assignment rows. The
// task_assignments table is the authoritative assignment set; task writes
// replace it inside the same transaction as the task row.
type TaskRepository struct {
	pool *db.Pool
}

func NewTaskRepository(pool *db.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `
	t.id, t.title, t.description, t.site_name, t.site_address,
	t.start_date, t.start_time, t.end_date, t.end_time,
	t.status, t.priority, t.notes,
	COALESCE(array_remove(array_agg(ta.employee_id ORDER BY ta.position), NULL), '{}'),
	COALESCE(t.client_id, ''), COALESCE(t.appointment_id, ''), COALESCE(t.quotation_id, ''),
	COALESCE(t.created_by, ''), t.attachments,
	t.sms_sent, t.sms_sent_at, t.sms_status,
	t.completed_at, COALESCE(t.completed_by, ''),
	t.created_at, t.updated_at`

const taskFrom = `
	FROM tasks t
	LEFT JOIN task_assignments ta ON ta.task_id = t.id`

const taskGroup = ` GROUP BY t.id`

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.SiteName, &t.SiteAddress,
		&t.StartDate, &t.StartTime, &t.EndDate, &t.EndTime,
		&t.Status, &t.Priority, &t.Notes,
		&t.AssignedEmployees,
		&t.ClientID, &t.AppointmentID, &t.QuotationID,
		&t.CreatedBy, &t.Attachments,
		&t.SMSSent, &t.SMSSentAt, &t.SMSStatus,
		&t.CompletedAt, &t.CompletedBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, workflow.ErrNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO tasks
			(id, title, description, site_name, site_address,
			 start_date, start_time, end_date, end_time,
			 status, priority, notes,
			 client_id, appointment_id, quotation_id, created_by,
			 attachments, sms_sent, sms_sent_at, sms_status,
			 completed_at, completed_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''), NULLIF($16, ''),
			$17, $18, $19, $20, $21, NULLIF($22, ''), $23, $24)
	`, t.ID, t.Title, t.Description, t.SiteName, t.SiteAddress,
		t.StartDate, t.StartTime, t.EndDate, t.EndTime,
		t.Status, t.Priority, t.Notes,
		t.ClientID, t.AppointmentID, t.QuotationID, t.CreatedBy,
		t.Attachments, t.SMSSent, t.SMSSentAt, t.SMSStatus,
		t.CompletedAt, t.CompletedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}

	if err := replaceAssignments(ctx, tx, t.ID, t.AssignedEmployees); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *TaskRepository) Get(ctx context.Context, id string) (model.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+taskFrom+`
		WHERE t.id = $1`+taskGroup,
		id))
}

func (r *TaskRepository) Update(ctx context.Context, t *model.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE tasks
		SET title = $2,
			description = $3,
			site_name = $4,
			site_address = $5,
			start_date = $6,
			start_time = $7,
			end_date = $8,
			end_time = $9,
			status = $10,
			priority = $11,
			notes = $12,
			attachments = $13,
			sms_sent = $14,
			sms_sent_at = $15,
			sms_status = $16,
			completed_at = $17,
			completed_by = NULLIF($18, ''),
			updated_at = $19
		WHERE id = $1
	`, t.ID, t.Title, t.Description, t.SiteName, t.SiteAddress,
		t.StartDate, t.StartTime, t.EndDate, t.EndTime,
		t.Status, t.Priority, t.Notes,
		t.Attachments, t.SMSSent, t.SMSSentAt, t.SMSStatus,
		t.CompletedAt, t.CompletedBy, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}

	if err := replaceAssignments(ctx, tx, t.ID, t.AssignedEmployees); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	// task_assignments rows go with the task via ON DELETE CASCADE.
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func replaceAssignments(ctx context.Context, tx pgx.Tx, taskID string, employeeIDs []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM task_assignments WHERE task_id = $1`, taskID); err != nil {
		return err
	}
	for i, employeeID := range employeeIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO task_assignments (task_id, employee_id, position)
			VALUES ($1, $2, $3)
		`, taskID, employeeID, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *TaskRepository) List(ctx context.Context) ([]model.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+taskFrom+taskGroup+`
		ORDER BY t.created_at DESC`)
}

func (r *TaskRepository) ListByEmployee(ctx context.Context, employeeID string) ([]model.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+taskFrom+`
		WHERE t.id IN (SELECT task_id FROM task_assignments WHERE employee_id = $1)`+taskGroup+`
		ORDER BY t.start_date`,
		employeeID)
}

func (r *TaskRepository) ListByClient(ctx context.Context, clientID string) ([]model.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+taskFrom+`
		WHERE t.client_id = $1`+taskGroup+`
		ORDER BY t.created_at DESC`,
		clientID)
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status string) ([]model.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+taskFrom+`
		WHERE t.status = $1`+taskGroup+`
		ORDER BY t.start_date`,
		status)
}

func (r *TaskRepository) ListByDateRange(ctx context.Context, start, end time.Time) ([]model.Task, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+taskFrom+`
		WHERE t.start_date >= $1 AND t.start_date <= $2`+taskGroup+`
		ORDER BY t.start_date`,
		start, end)
}

func (r *TaskRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	return r.countBy(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
}

func (r *TaskRepository) CountByPriority(ctx context.Context) (map[string]int, error) {
	return r.countBy(ctx, `SELECT priority, COUNT(*) FROM tasks GROUP BY priority`)
}

func (r *TaskRepository) CountCompletedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE status = $1 AND completed_at >= $2
	`, model.TaskCompleted, since).Scan(&n)
	return n, err
}

func (r *TaskRepository) query(ctx context.Context, sql string, args ...any) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TaskRepository) countBy(ctx context.Context, sql string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}
