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

type QuotationRepository struct {
	pool *db.Pool
}

func NewQuotationRepository(pool *db.Pool) *QuotationRepository {
	return &QuotationRepository{pool: pool}
}

const quotationColumns = `
	id, number, appointment_id, client_id, valid_until, items,
	subtotal, tax_rate, tax_amount, discount_rate, discount_amount, total,
	notes, terms, status, file_url, file_public_id,
	client_viewed, client_viewed_at, created_at, updated_at`

func scanQuotation(row pgx.Row) (model.Quotation, error) {
	var q model.Quotation
	err := row.Scan(
		&q.ID, &q.Number, &q.AppointmentID, &q.ClientID, &q.ValidUntil, &q.Items,
		&q.Subtotal, &q.TaxRate, &q.TaxAmount, &q.DiscountRate, &q.DiscountAmount, &q.Total,
		&q.Notes, &q.Terms, &q.Status, &q.FileURL, &q.FilePublicID,
		&q.ClientViewed, &q.ClientViewedAt, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Quotation{}, workflow.ErrNotFound
	}
	if err != nil {
		return model.Quotation{}, err
	}
	return q, nil
}

func (r *QuotationRepository) Create(ctx context.Context, q *model.Quotation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quotations
			(id, number, appointment_id, client_id, valid_until, items,
			 subtotal, tax_rate, tax_amount, discount_rate, discount_amount, total,
			 notes, terms, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, q.ID, q.Number, q.AppointmentID, q.ClientID, q.ValidUntil, q.Items,
		q.Subtotal, q.TaxRate, q.TaxAmount, q.DiscountRate, q.DiscountAmount, q.Total,
		q.Notes, q.Terms, q.Status, q.CreatedAt, q.UpdatedAt)
	return err
}

func (r *QuotationRepository) Get(ctx context.Context, id string) (model.Quotation, error) {
	return scanQuotation(r.pool.QueryRow(ctx, `
		SELECT `+quotationColumns+`
		FROM quotations
		WHERE id = $1
	`, id))
}

func (r *QuotationRepository) Update(ctx context.Context, q *model.Quotation) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE quotations
		SET valid_until = $2,
			items = $3,
			subtotal = $4,
			tax_rate = $5,
			tax_amount = $6,
			discount_rate = $7,
			discount_amount = $8,
			total = $9,
			notes = $10,
			terms = $11,
			status = $12,
			file_url = $13,
			file_public_id = $14,
			client_viewed = $15,
			client_viewed_at = $16,
			updated_at = $17
		WHERE id = $1
	`, q.ID, q.ValidUntil, q.Items,
		q.Subtotal, q.TaxRate, q.TaxAmount, q.DiscountRate, q.DiscountAmount, q.Total,
		q.Notes, q.Terms, q.Status, q.FileURL, q.FilePublicID,
		q.ClientViewed, q.ClientViewedAt, q.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *QuotationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM quotations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *QuotationRepository) List(ctx context.Context) ([]model.Quotation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+quotationColumns+`
		FROM quotations
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuotations(rows)
}

func (r *QuotationRepository) ListByClient(ctx context.Context, clientID string) ([]model.Quotation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+quotationColumns+`
		FROM quotations
		WHERE client_id = $1
		ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuotations(rows)
}

// NextSequence bumps the per-month counter and returns the new value. The
// upsert makes concurrent calls serialize on the counter row, so two
// quotations can never share a number.
func (r *QuotationRepository) NextSequence(ctx context.Context, year int, month time.Month) (int, error) {
	var seq int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO quotation_counters (year, month, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (year, month) DO UPDATE SET seq = quotation_counters.seq + 1
		RETURNING seq
	`, year, int(month)).Scan(&seq)
	return seq, err
}

func collectQuotations(rows pgx.Rows) ([]model.Quotation, error) {
	var out []model.Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
