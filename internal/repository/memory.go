package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/domain"
)

// MemoryStore keeps every record in process. It backs local runs without a
// database and the service tests. A single mutex serializes writes, which
// gives guarded updates the same all-or-nothing behavior as the SQL store.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   clock.Clock
	users   map[int64]domain.User
	admins  map[int64]domain.Admin
	tickets map[int64]*domain.Ticket
	logs    []domain.LogEntry
	nextTID int64
	nextLID int64

	// failWith, when set, is returned by every call. Tests use it to
	// simulate an unreachable store.
	failWith error
}

// NewMemoryStore creates an empty store stamped by clk.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryStore{
		clock:   clk,
		users:   make(map[int64]domain.User),
		admins:  make(map[int64]domain.Admin),
		tickets: make(map[int64]*domain.Ticket),
	}
}

// Set exposes the store through the repository interfaces.
func (m *MemoryStore) Set() Set {
	return Set{
		Users:   memoryUsers{m},
		Admins:  memoryAdmins{m},
		Tickets: memoryTickets{m},
		Logs:    memoryLogs{m},
	}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Ping reports the simulated availability.
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failWith
}

// Logs returns a copy of the full audit trail in append order.
func (m *MemoryStore) Logs() []domain.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.LogEntry(nil), m.logs...)
}

func (m *MemoryStore) appendLog(entry *domain.LogEntry, ticketID int64) {
	m.nextLID++
	entry.ID = m.nextLID
	entry.TicketID = ticketID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.clock.Now()
	}
	stored := *entry
	if entry.AdminID != nil {
		v := *entry.AdminID
		stored.AdminID = &v
	}
	m.logs = append(m.logs, stored)
}

type memoryUsers struct{ *MemoryStore }

func (m memoryUsers) Upsert(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	existing, ok := m.users[user.UserID]
	if ok {
		existing.DisplayName = user.DisplayName
		m.users[user.UserID] = existing
		*user = existing
		return nil
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.clock.Now()
	}
	m.users[user.UserID] = *user
	return nil
}

func (m memoryUsers) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	user, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

type memoryAdmins struct{ *MemoryStore }

func (m memoryAdmins) Create(ctx context.Context, admin *domain.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.admins[admin.AdminID]; ok {
		return ErrDuplicate
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = m.clock.Now()
	}
	m.admins[admin.AdminID] = *admin
	return nil
}

func (m memoryAdmins) GetByID(ctx context.Context, adminID int64) (*domain.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	admin, ok := m.admins[adminID]
	if !ok {
		return nil, ErrNotFound
	}
	return &admin, nil
}

func (m memoryAdmins) List(ctx context.Context) ([]domain.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	result := make([]domain.Admin, 0, len(m.admins))
	for _, admin := range m.admins {
		result = append(result, admin)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].AdminID < result[j].AdminID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

type memoryTickets struct{ *MemoryStore }

func (m memoryTickets) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.users[ticket.UserID]; !ok {
		return ErrNotFound
	}
	m.nextTID++
	ticket.ID = m.nextTID
	ticket.MissedFlag = false
	m.tickets[ticket.ID] = ticket.Clone()
	if entry != nil {
		m.appendLog(entry, ticket.ID)
	}
	return nil
}

func (m memoryTickets) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (m memoryTickets) UpdateConditional(ctx context.Context, update TicketUpdate, entry *domain.LogEntry) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	ticket, ok := m.tickets[update.ID]
	if !ok || !update.Matches(ticket) {
		return nil, ErrConditionFailed
	}
	if entry != nil && entry.AdminID != nil {
		if _, ok := m.admins[*entry.AdminID]; !ok {
			return nil, ErrNotFound
		}
	}
	update.Apply(ticket)
	if entry != nil {
		m.appendLog(entry, ticket.ID)
	}
	return ticket.Clone(), nil
}

func (m memoryTickets) ListMissedCandidates(ctx context.Context, createdBefore time.Time, afterID int64, limit int) ([]domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if limit <= 0 {
		limit = 500
	}
	var result []domain.Ticket
	for _, t := range m.tickets {
		if t.ID > afterID && t.Status == domain.TicketStatusInProgress && t.FirstResponseAt == nil &&
			!t.MissedFlag && !t.CreatedAt.After(createdBefore) {
			result = append(result, *t.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m memoryTickets) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var result []domain.Ticket
	for _, t := range m.tickets {
		if matchesFilter(t, filter) {
			result = append(result, *t.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if filter.OrderByClosedAt {
			a, b := result[i].ClosedAt, result[j].ClosedAt
			switch {
			case a != nil && b == nil:
				return true
			case a == nil && b != nil:
				return false
			case a != nil && b != nil && !a.Equal(*b):
				return a.After(*b)
			}
		}
		return result[i].ID > result[j].ID
	})
	if filter.Limit > 0 {
		offset := max(filter.Offset, 0)
		if offset >= len(result) {
			return nil, nil
		}
		end := min(offset+filter.Limit, len(result))
		result = result[offset:end]
	}
	return result, nil
}

func matchesFilter(t *domain.Ticket, f TicketFilter) bool {
	if f.UserID != nil && t.UserID != *f.UserID {
		return false
	}
	if f.AssignedAdminID != nil && !t.ClaimedBy(*f.AssignedAdminID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, t.Priority) {
		return false
	}
	if f.Missed != nil && t.MissedFlag != *f.Missed {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

type memoryLogs struct{ *MemoryStore }

func (m memoryLogs) ListByTicket(ctx context.Context, ticketID int64) ([]domain.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var result []domain.LogEntry
	for _, entry := range m.logs {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (m memoryLogs) ListRecent(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if limit <= 0 {
		limit = 100
	}
	var result []domain.LogEntry
	for i := len(m.logs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, m.logs[i])
	}
	return result, nil
}
