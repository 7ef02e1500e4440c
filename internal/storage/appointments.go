package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/workflow"
	"github.com/buildrite/siteops/libs/db"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `
	id, COALESCE(user_id, ''), name, email, phone, site_address,
	preferred_at, alternate_at, status, notes,
	COALESCE(confirmed_by, ''), confirmed_at,
	calendar_event_id, calendar_event_link,
	COALESCE(quotation_id, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Email, &a.Phone, &a.SiteAddress,
		&a.PreferredAt, &a.AlternateAt, &a.Status, &a.Notes,
		&a.ConfirmedBy, &a.ConfirmedAt,
		&a.CalendarEventID, &a.CalendarEventLink,
		&a.QuotationID, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, workflow.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, user_id, name, email, phone, site_address,
			 preferred_at, alternate_at, status, notes, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.UserID, a.Name, a.Email, a.Phone, a.SiteAddress,
		a.PreferredAt, a.AlternateAt, a.Status, a.Notes, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r *AppointmentRepository) Update(ctx context.Context, a *model.Appointment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET name = $2,
			email = $3,
			phone = $4,
			site_address = $5,
			preferred_at = $6,
			alternate_at = $7,
			status = $8,
			notes = $9,
			confirmed_by = NULLIF($10, ''),
			confirmed_at = $11,
			calendar_event_id = $12,
			calendar_event_link = $13,
			updated_at = $14
		WHERE id = $1
	`, a.ID, a.Name, a.Email, a.Phone, a.SiteAddress,
		a.PreferredAt, a.AlternateAt, a.Status, a.Notes,
		a.ConfirmedBy, a.ConfirmedAt,
		a.CalendarEventID, a.CalendarEventLink, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepository) List(ctx context.Context) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListForClient(ctx context.Context, userID, email string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE (user_id = NULLIF($1, '')) OR lower(email) = lower($2)
		ORDER BY created_at DESC
	`, userID, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// SetQuotationRef is a targeted write so the quotation workflow never races
// with concurrent appointment field updates. Missing rows are ignored.
func (r *AppointmentRepository) SetQuotationRef(ctx context.Context, appointmentID, quotationID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET quotation_id = NULLIF($2, ''),
			updated_at = now()
		WHERE id = $1
	`, appointmentID, quotationID)
	return err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
