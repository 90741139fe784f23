package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-bot/internal/domain"
)

const ticketColumns = `id, user_id, status, assigned_admin_id, priority, missed_flag, payload,
               created_at, closed_at, first_response_at`

type ticketRepository struct {
	pgStore
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool, queryTimeout time.Duration) TicketRepository {
	return &ticketRepository{pgStore: newPgStore(pool, queryTimeout)}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.LogEntry) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO tickets (user_id, status, priority, missed_flag, payload, created_at)
        VALUES ($1,$2,$3,FALSE,$4,$5)
        RETURNING id`

	return wrapErr(pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query,
			ticket.UserID,
			ticket.Status,
			ticket.Priority,
			ticket.Payload,
			ticket.CreatedAt,
		).Scan(&ticket.ID); err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		entry.TicketID = ticket.ID
		return insertLog(ctx, tx, entry)
	}))
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapErr(err)
	}
	return ticket, nil
}

// UpdateConditional runs the guarded UPDATE and the audit insert in one
// transaction. The guard is evaluated by the UPDATE's WHERE clause, so two
// concurrent callers can never both match the same row state.
func (r *ticketRepository) UpdateConditional(ctx context.Context, update TicketUpdate, entry *domain.LogEntry) (*domain.Ticket, error) {
	query, args, err := buildConditionalUpdate(update)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var ticket *domain.Ticket
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		updated, err := scanTicket(tx.QueryRow(ctx, query, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrConditionFailed
			}
			return err
		}
		if entry != nil {
			entry.TicketID = updated.ID
			if err := insertLog(ctx, tx, entry); err != nil {
				return err
			}
		}
		ticket = updated
		return nil
	})
	if errors.Is(err, ErrConditionFailed) {
		return nil, ErrConditionFailed
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return ticket, nil
}

func buildConditionalUpdate(u TicketUpdate) (string, []any, error) {
	if u.Empty() {
		return "", nil, errors.New("conditional update assigns nothing")
	}
	args := []any{u.ID}
	sets := []string{}
	clauses := []string{"id=$1"}

	if u.SetStatus != nil {
		args = append(args, *u.SetStatus)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if u.SetAssignedAdminID != nil {
		args = append(args, *u.SetAssignedAdminID)
		sets = append(sets, fmt.Sprintf("assigned_admin_id=$%d", len(args)))
	}
	if u.SetClosedAt != nil {
		args = append(args, *u.SetClosedAt)
		sets = append(sets, fmt.Sprintf("closed_at=$%d", len(args)))
	}
	if u.SetFirstResponseAt != nil {
		args = append(args, *u.SetFirstResponseAt)
		sets = append(sets, fmt.Sprintf("first_response_at=COALESCE(first_response_at, $%d)", len(args)))
	}
	if u.SetMissed {
		sets = append(sets, "missed_flag=TRUE")
	}
	if u.SetPriority != nil {
		args = append(args, *u.SetPriority)
		sets = append(sets, fmt.Sprintf("priority=$%d", len(args)))
	}

	if u.ExpectStatus != nil {
		args = append(args, *u.ExpectStatus)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if u.ExcludeStatus != nil {
		args = append(args, *u.ExcludeStatus)
		clauses = append(clauses, fmt.Sprintf("status<>$%d", len(args)))
	}
	if u.ExpectAssignee != nil {
		args = append(args, *u.ExpectAssignee)
		clauses = append(clauses, fmt.Sprintf("assigned_admin_id=$%d", len(args)))
	}
	if u.ExpectNoResponse {
		clauses = append(clauses, "first_response_at IS NULL")
	}
	if u.ExpectNotMissed {
		clauses = append(clauses, "missed_flag=FALSE")
	}

	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), strings.Join(clauses, " AND "), ticketColumns)
	return query, args, nil
}

func (r *ticketRepository) ListMissedCandidates(ctx context.Context, createdBefore time.Time, afterID int64, limit int) ([]domain.Ticket, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE status='IN_PROGRESS'
          AND first_response_at IS NULL
          AND missed_flag=FALSE
          AND created_at <= $1
          AND id > $2
        ORDER BY id ASC
        LIMIT $3`
	rows, err := r.pool.Query(ctx, query, createdBefore, afterID, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.AssignedAdminID != nil {
		args = append(args, *filter.AssignedAdminID)
		clauses = append(clauses, fmt.Sprintf("assigned_admin_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Missed != nil {
		args = append(args, *filter.Missed)
		clauses = append(clauses, fmt.Sprintf("missed_flag=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	order := "id DESC"
	if filter.OrderByClosedAt {
		order = "closed_at DESC NULLS LAST, id DESC"
	}
	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s`, base, strings.Join(clauses, " AND "), order)
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.Status,
		&ticket.AssignedAdminID,
		&ticket.Priority,
		&ticket.MissedFlag,
		&ticket.Payload,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
		&ticket.FirstResponseAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		result = append(result, *ticket)
	}
	return result, wrapErr(rows.Err())
}
