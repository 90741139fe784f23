package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-bot/internal/domain"
)

type userRepository struct {
	pgStore
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool, queryTimeout time.Duration) UserRepository {
	return &userRepository{pgStore: newPgStore(pool, queryTimeout)}
}

// Upsert creates the user or refreshes display_name. The phone number is kept
// from the first registration.
func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO users (user_id, display_name, contact_phone)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name
        RETURNING display_name, contact_phone, created_at`

	return wrapErr(r.pool.QueryRow(ctx, query,
		user.UserID,
		user.DisplayName,
		user.ContactPhone,
	).Scan(&user.DisplayName, &user.ContactPhone, &user.CreatedAt))
}

func (r *userRepository) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT user_id, display_name, contact_phone, created_at
        FROM users WHERE user_id=$1`

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.UserID,
		&user.DisplayName,
		&user.ContactPhone,
		&user.CreatedAt,
	); err != nil {
		return nil, wrapErr(err)
	}
	return &user, nil
}
