package storage

import (
	"context"

	"github.com/buildrite/siteops/internal/notify"
	"github.com/buildrite/siteops/libs/db"
)

// NotificationRepository is the audit log behind best-effort sends.
type NotificationRepository struct {
	pool *db.Pool
}

func NewNotificationRepository(pool *db.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Record(ctx context.Context, rec notify.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications
			(channel, recipient, subject, body, status, error, ref_type, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9)
	`, rec.Channel, rec.Recipient, rec.Subject, rec.Body, rec.Status, rec.Error, rec.RefType, rec.RefID, rec.CreatedAt)
	return err
}

func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]notify.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT channel, recipient, subject, body, status, COALESCE(error, ''),
			ref_type, COALESCE(ref_id, ''), created_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Record
	for rows.Next() {
		var rec notify.Record
		if err := rows.Scan(&rec.Channel, &rec.Recipient, &rec.Subject, &rec.Body, &rec.Status,
			&rec.Error, &rec.RefType, &rec.RefID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
