package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-bot/internal/domain"
)

type logRepository struct {
	pgStore
}

// NewLogRepository builds the audit trail reader.
func NewLogRepository(pool *pgxpool.Pool, queryTimeout time.Duration) LogRepository {
	return &logRepository{pgStore: newPgStore(pool, queryTimeout)}
}

const insertLogQuery = `
    INSERT INTO logs (action, ticket_id, admin_id, created_at)
    VALUES ($1,$2,$3,$4)
    RETURNING id`

// insertLog appends an entry inside the caller's transaction.
func insertLog(ctx context.Context, tx pgx.Tx, entry *domain.LogEntry) error {
	return tx.QueryRow(ctx, insertLogQuery,
		entry.Action,
		entry.TicketID,
		entry.AdminID,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *logRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.LogEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT id, action, ticket_id, admin_id, created_at
        FROM logs WHERE ticket_id=$1 ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func (r *logRepository) ListRecent(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, action, ticket_id, admin_id, created_at
        FROM logs ORDER BY id DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLogs(rows pgx.Rows) ([]domain.LogEntry, error) {
	var result []domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.TicketID,
			&entry.AdminID,
			&entry.CreatedAt,
		); err != nil {
			return nil, wrapErr(err)
		}
		result = append(result, entry)
	}
	return result, wrapErr(rows.Err())
}
