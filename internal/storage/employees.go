package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/workflow"
	"github.com/buildrite/siteops/libs/db"
)

type EmployeeRepository struct {
	pool *db.Pool
}

func NewEmployeeRepository(pool *db.Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

const employeeColumns = `
	id, name, role, COALESCE(phone, ''), status, COALESCE(avatar_url, ''), created_at, updated_at`

func scanEmployee(row pgx.Row) (model.Employee, error) {
	var e model.Employee
	err := row.Scan(&e.ID, &e.Name, &e.Role, &e.Phone, &e.Status, &e.AvatarURL, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Employee{}, workflow.ErrNotFound
	}
	if err != nil {
		return model.Employee{}, err
	}
	return e, nil
}

func (r *EmployeeRepository) Create(ctx context.Context, e *model.Employee) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO employees (id, name, role, phone, status, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8)
	`, e.ID, e.Name, e.Role, e.Phone, e.Status, e.AvatarURL, e.CreatedAt, e.UpdatedAt)
	return translatePhoneConflict(err)
}

func (r *EmployeeRepository) Get(ctx context.Context, id string) (model.Employee, error) {
	return scanEmployee(r.pool.QueryRow(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE id = $1
	`, id))
}

func (r *EmployeeRepository) Update(ctx context.Context, e *model.Employee) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE employees
		SET name = $2,
			role = $3,
			phone = NULLIF($4, ''),
			status = $5,
			avatar_url = NULLIF($6, ''),
			updated_at = $7
		WHERE id = $1
	`, e.ID, e.Name, e.Role, e.Phone, e.Status, e.AvatarURL, e.UpdatedAt)
	if err != nil {
		return translatePhoneConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *EmployeeRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *EmployeeRepository) List(ctx context.Context) ([]model.Employee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

func (r *EmployeeRepository) ListByIDs(ctx context.Context, ids []string) ([]model.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

// AssignmentCount reports how many tasks currently reference the employee.
// Deletion is refused while this is non-zero.
func (r *EmployeeRepository) AssignmentCount(ctx context.Context, id string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM task_assignments WHERE employee_id = $1
	`, id).Scan(&n)
	return n, err
}

// translatePhoneConflict maps the unique-phone index violation to a
// validation error so handlers answer 400 instead of 500.
func translatePhoneConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_employees_phone" {
		return workflow.Validationf("phone number already in use")
	}
	return err
}

func collectEmployees(rows pgx.Rows) ([]model.Employee, error) {
	var out []model.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
