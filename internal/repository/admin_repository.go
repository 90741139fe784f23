package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-bot/internal/domain"
)

type adminRepository struct {
	pgStore
}

// NewAdminRepository instantiates the repository.
func NewAdminRepository(pool *pgxpool.Pool, queryTimeout time.Duration) AdminRepository {
	return &adminRepository{pgStore: newPgStore(pool, queryTimeout)}
}

func (r *adminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO admins (admin_id, display_name, role)
        VALUES ($1,$2,$3)
        RETURNING created_at`

	return wrapErr(r.pool.QueryRow(ctx, query,
		admin.AdminID,
		admin.DisplayName,
		admin.Role,
	).Scan(&admin.CreatedAt))
}

func (r *adminRepository) GetByID(ctx context.Context, adminID int64) (*domain.Admin, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT admin_id, display_name, role, created_at
        FROM admins WHERE admin_id=$1`

	var admin domain.Admin
	if err := r.pool.QueryRow(ctx, query, adminID).Scan(
		&admin.AdminID,
		&admin.DisplayName,
		&admin.Role,
		&admin.CreatedAt,
	); err != nil {
		return nil, wrapErr(err)
	}
	return &admin, nil
}

func (r *adminRepository) List(ctx context.Context) ([]domain.Admin, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT admin_id, display_name, role, created_at
        FROM admins ORDER BY created_at ASC, admin_id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var result []domain.Admin
	for rows.Next() {
		var admin domain.Admin
		if err := rows.Scan(
			&admin.AdminID,
			&admin.DisplayName,
			&admin.Role,
			&admin.CreatedAt,
		); err != nil {
			return nil, wrapErr(err)
		}
		result = append(result, admin)
	}
	return result, wrapErr(rows.Err())
}
