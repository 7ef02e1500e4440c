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

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `
	id, name, email, COALESCE(phone, ''), is_admin, is_email_verified, password_hash,
	COALESCE(calendar_access_token, ''), COALESCE(calendar_refresh_token, ''), calendar_token_expiry,
	created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.IsAdmin, &u.IsEmailVerified, &u.PasswordHash,
		&u.CalendarAccessToken, &u.CalendarRefreshToken, &u.CalendarTokenExpiry,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, workflow.ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users
			(id, name, email, phone, is_admin, is_email_verified, password_hash, created_at, updated_at)
		VALUES ($1, $2, lower($3), NULLIF($4, ''), $5, $6, $7, $8, $9)
	`, u.ID, u.Name, u.Email, u.Phone, u.IsAdmin, u.IsEmailVerified, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = lower($1)
	`, email))
}

func (r *UserRepository) SetCalendarTokens(ctx context.Context, id, accessToken, refreshToken string, expiry *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET calendar_access_token = NULLIF($2, ''),
			calendar_refresh_token = NULLIF($3, ''),
			calendar_token_expiry = $4,
			updated_at = now()
		WHERE id = $1
	`, id, accessToken, refreshToken, expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}
