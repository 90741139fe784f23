package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore is shared by the Postgres repositories.
type pgStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func newPgStore(pool *pgxpool.Pool, timeout time.Duration) pgStore {
	return pgStore{pool: pool, timeout: timeout}
}

// withTimeout bounds a single store round-trip.
func (s pgStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
