package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-bot/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches the requested key.
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned when a guarded update matched no row.
	ErrConditionFailed = errors.New("update condition not met")
	// ErrDuplicate is returned on unique key violations.
	ErrDuplicate = errors.New("record already exists")
	// ErrUnavailable wraps transient infrastructure failures.
	ErrUnavailable = errors.New("store unavailable")
)

// UserRepository defines persistence access for end-users.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, userID int64) (*domain.User, error)
}

// AdminRepository handles persistence for admins.
type AdminRepository interface {
	Create(ctx context.Context, admin *domain.Admin) error
	GetByID(ctx context.Context, adminID int64) (*domain.Admin, error)
	List(ctx context.Context) ([]domain.Admin, error)
}

// TicketRepository encapsulates ticket persistence. Every mutation writes
// its audit entry in the same transaction as the row change.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, entry *domain.LogEntry) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	UpdateConditional(ctx context.Context, update TicketUpdate, entry *domain.LogEntry) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListMissedCandidates pages by id: only tickets with id > afterID are returned.
	ListMissedCandidates(ctx context.Context, createdBefore time.Time, afterID int64, limit int) ([]domain.Ticket, error)
}

// LogRepository reads the append-only audit trail.
type LogRepository interface {
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.LogEntry, error)
	ListRecent(ctx context.Context, limit int) ([]domain.LogEntry, error)
}

// TicketFilter captures listing parameters.
type TicketFilter struct {
	UserID          *int64
	AssignedAdminID *int64
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	Missed          *bool
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	OrderByClosedAt bool
	Limit           int
	Offset          int
}

// TicketUpdate is a compare-and-set on one ticket row: the Set fields are
// applied only when every Expect guard holds at write time.
type TicketUpdate struct {
	ID int64

	ExpectStatus     *domain.TicketStatus
	ExcludeStatus    *domain.TicketStatus
	ExpectAssignee   *int64
	ExpectNoResponse bool
	ExpectNotMissed  bool

	SetStatus          *domain.TicketStatus
	SetAssignedAdminID *int64
	SetClosedAt        *time.Time
	// SetFirstResponseAt only fills an empty first_response_at.
	SetFirstResponseAt *time.Time
	SetMissed          bool
	SetPriority        *domain.TicketPriority
}

// Empty reports whether the update assigns nothing.
func (u TicketUpdate) Empty() bool {
	return u.SetStatus == nil && u.SetAssignedAdminID == nil && u.SetClosedAt == nil &&
		u.SetFirstResponseAt == nil && !u.SetMissed && u.SetPriority == nil
}

// Matches evaluates the guards against t.
func (u TicketUpdate) Matches(t *domain.Ticket) bool {
	if t == nil || t.ID != u.ID {
		return false
	}
	if u.ExpectStatus != nil && t.Status != *u.ExpectStatus {
		return false
	}
	if u.ExcludeStatus != nil && t.Status == *u.ExcludeStatus {
		return false
	}
	if u.ExpectAssignee != nil && !t.ClaimedBy(*u.ExpectAssignee) {
		return false
	}
	if u.ExpectNoResponse && t.FirstResponseAt != nil {
		return false
	}
	if u.ExpectNotMissed && t.MissedFlag {
		return false
	}
	return true
}

// Apply writes the Set fields onto t.
func (u TicketUpdate) Apply(t *domain.Ticket) {
	if u.SetStatus != nil {
		t.Status = *u.SetStatus
	}
	if u.SetAssignedAdminID != nil {
		v := *u.SetAssignedAdminID
		t.AssignedAdminID = &v
	}
	if u.SetClosedAt != nil {
		v := *u.SetClosedAt
		t.ClosedAt = &v
	}
	if u.SetFirstResponseAt != nil && t.FirstResponseAt == nil {
		v := *u.SetFirstResponseAt
		t.FirstResponseAt = &v
	}
	if u.SetMissed {
		t.MissedFlag = true
	}
	if u.SetPriority != nil {
		t.Priority = *u.SetPriority
	}
}

// Set bundles the repositories consumed by the services.
type Set struct {
	Users   UserRepository
	Admins  AdminRepository
	Tickets TicketRepository
	Logs    LogRepository
}

// NewPostgresSet wires every repository onto one pool.
func NewPostgresSet(pool *pgxpool.Pool, queryTimeout time.Duration) Set {
	return Set{
		Users:   NewUserRepository(pool, queryTimeout),
		Admins:  NewAdminRepository(pool, queryTimeout),
		Tickets: NewTicketRepository(pool, queryTimeout),
		Logs:    NewLogRepository(pool, queryTimeout),
	}
}
