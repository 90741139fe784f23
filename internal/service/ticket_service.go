package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/repository"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

const defaultClosedListLimit = 50

// TicketService owns the ticket state machine. Every transition is a single
// guarded update in the store; the service holds no locks of its own.
type TicketService struct {
	tickets    repository.TicketRepository
	logs       repository.LogRepository
	users      repository.UserRepository
	admins     repository.AdminRepository
	roles      *RoleResolver
	dispatcher events.Dispatcher
	clock      clock.Clock
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	LogRepo    repository.LogRepository
	UserRepo   repository.UserRepository
	AdminRepo  repository.AdminRepository
	Roles      *RoleResolver
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// TicketListFilter describes staff listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	AssigneeID  *int64
	UserID      *int64
	Missed      *bool
	CreatedFrom *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketRepo,
		logs:       deps.LogRepo,
		users:      deps.UserRepo,
		admins:     deps.AdminRepo,
		roles:      deps.Roles,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	if s.roles == nil {
		s.roles = NewRoleResolver(deps.UserRepo, deps.AdminRepo)
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// CreateTicket opens a ticket for a registered user.
func (s *TicketService) CreateTicket(ctx context.Context, userID int64, priority domain.TicketPriority, payload domain.MessagePayload) (*domain.Ticket, error) {
	if priority == "" {
		priority = domain.TicketPriorityNormal
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	ctx = context.WithoutCancel(ctx)

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUserNotRegistered(userID)
		}
		return nil, mapStoreErr(err, "user", nil)
	}

	raw, err := payload.Encode()
	if err != nil {
		return nil, apperrors.NewValidationError("payload cannot be encoded", nil)
	}

	now := s.now()
	ticket := &domain.Ticket{
		UserID:    userID,
		Status:    domain.TicketStatusOpen,
		Priority:  priority,
		Payload:   raw,
		CreatedAt: now,
	}
	entry := &domain.LogEntry{Action: domain.LogActionCreated, CreatedAt: now}
	if err := s.tickets.Create(ctx, ticket, entry); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUserNotRegistered(userID)
		}
		return nil, mapStoreErr(err, "ticket", nil)
	}
	s.metrics.RecordTransition(string(entry.Action))

	s.publishEvent(ctx, events.New(events.EventTicketCreated, ticket.ID, nil, now,
		events.Recipients{AdminIDs: s.adminIDs(ctx), Group: true},
		events.TicketCreatedPayload{UserID: userID, Priority: priority, Content: payload}))
	return ticket, nil
}

// ClaimTicket assigns an OPEN ticket to adminID. Exactly one of several
// concurrent claimants wins; the others get ALREADY_CLAIMED.
func (s *TicketService) ClaimTicket(ctx context.Context, ticketID, adminID int64) (*domain.Ticket, error) {
	if _, err := s.roles.RequireStaff(ctx, adminID); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	open := domain.TicketStatusOpen
	inProgress := domain.TicketStatusInProgress
	now := s.now()
	entry := &domain.LogEntry{Action: domain.LogActionClaimed, AdminID: &adminID, CreatedAt: now}
	ticket, err := s.tickets.UpdateConditional(ctx, repository.TicketUpdate{
		ID:                 ticketID,
		ExpectStatus:       &open,
		SetStatus:          &inProgress,
		SetAssignedAdminID: &adminID,
	}, entry)
	if err != nil {
		return nil, s.explain(ctx, err, ticketID, func(current *domain.Ticket) error {
			if current.Status == domain.TicketStatusClosed {
				return apperrors.NewInvalidState("ticket is closed", ticketDetails(current))
			}
			return apperrors.NewAlreadyClaimed(ticketDetails(current))
		})
	}
	s.metrics.RecordTransition(string(entry.Action))

	s.publishEvent(ctx, events.New(events.EventTicketClaimed, ticket.ID, &adminID, now,
		events.Recipients{UserIDs: []int64{ticket.UserID}, Group: true},
		events.TicketClaimedPayload{UserID: ticket.UserID, AdminID: adminID}))
	return ticket, nil
}

// RecordResponse registers a reply from the claimant. Only the first reply sets
// first_response_at; missed_flag is never cleared.
func (s *TicketService) RecordResponse(ctx context.Context, ticketID, adminID int64, content domain.MessagePayload) (*domain.Ticket, error) {
	if content.Summary() == "" && content.FileID == "" {
		return nil, apperrors.NewValidationError("response is empty", nil)
	}
	ctx = context.WithoutCancel(ctx)

	inProgress := domain.TicketStatusInProgress
	now := s.now()
	entry := &domain.LogEntry{Action: domain.LogActionAnswered, AdminID: &adminID, CreatedAt: now}
	ticket, err := s.tickets.UpdateConditional(ctx, repository.TicketUpdate{
		ID:                 ticketID,
		ExpectStatus:       &inProgress,
		ExpectAssignee:     &adminID,
		SetFirstResponseAt: &now,
	}, entry)
	if err != nil {
		return nil, s.explain(ctx, err, ticketID, claimantMismatch(adminID))
	}
	s.metrics.RecordTransition(string(entry.Action))

	first := ticket.FirstResponseAt != nil && ticket.FirstResponseAt.Equal(now)
	s.publishEvent(ctx, events.New(events.EventTicketAnswered, ticket.ID, &adminID, now,
		events.Recipients{UserIDs: []int64{ticket.UserID}},
		events.TicketAnsweredPayload{UserID: ticket.UserID, AdminID: adminID, FirstResponse: first, Content: content}))
	return ticket, nil
}

// CloseTicket moves the claimant's ticket to CLOSED.
func (s *TicketService) CloseTicket(ctx context.Context, ticketID, adminID int64) (*domain.Ticket, error) {
	ctx = context.WithoutCancel(ctx)

	inProgress := domain.TicketStatusInProgress
	closed := domain.TicketStatusClosed
	now := s.now()
	entry := &domain.LogEntry{Action: domain.LogActionClosed, AdminID: &adminID, CreatedAt: now}
	ticket, err := s.tickets.UpdateConditional(ctx, repository.TicketUpdate{
		ID:             ticketID,
		ExpectStatus:   &inProgress,
		ExpectAssignee: &adminID,
		SetStatus:      &closed,
		SetClosedAt:    &now,
	}, entry)
	if err != nil {
		return nil, s.explain(ctx, err, ticketID, claimantMismatch(adminID))
	}
	s.metrics.RecordTransition(string(entry.Action))

	s.publishEvent(ctx, events.New(events.EventTicketClosed, ticket.ID, &adminID, now,
		events.Recipients{UserIDs: []int64{ticket.UserID}, Group: true},
		events.TicketClosedPayload{UserID: ticket.UserID, AdminID: adminID}))
	return ticket, nil
}

// SetPriority changes the priority of a non-closed ticket. No event is emitted.
func (s *TicketService) SetPriority(ctx context.Context, ticketID, adminID int64, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	if _, err := s.roles.RequireStaff(ctx, adminID); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	closed := domain.TicketStatusClosed
	now := s.now()
	entry := &domain.LogEntry{Action: domain.LogActionPriorityChanged, AdminID: &adminID, CreatedAt: now}
	ticket, err := s.tickets.UpdateConditional(ctx, repository.TicketUpdate{
		ID:            ticketID,
		ExcludeStatus: &closed,
		SetPriority:   &priority,
	}, entry)
	if err != nil {
		return nil, s.explain(ctx, err, ticketID, func(current *domain.Ticket) error {
			return apperrors.NewInvalidState("ticket is closed", ticketDetails(current))
		})
	}
	s.metrics.RecordTransition(string(entry.Action))
	return ticket, nil
}

// MissedCandidates lists claimed, unanswered, unflagged tickets created at or
// before cutoff, in id order starting after afterID.
func (s *TicketService) MissedCandidates(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListMissedCandidates(ctx, cutoff, afterID, limit)
	if err != nil {
		return nil, mapStoreErr(err, "ticket", nil)
	}
	return tickets, nil
}

// FlagMissedResponse sets missed_flag on ticket when it is still claimed,
// unanswered and unflagged. It reports false when another writer got there
// first or the ticket was answered meanwhile. Only a true result emits
// ResponseMissed.
func (s *TicketService) FlagMissedResponse(ctx context.Context, ticket domain.Ticket) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	inProgress := domain.TicketStatusInProgress
	now := s.now()
	entry := &domain.LogEntry{Action: domain.LogActionResponseMissed, AdminID: ticket.AssignedAdminID, CreatedAt: now}
	flagged, err := s.tickets.UpdateConditional(ctx, repository.TicketUpdate{
		ID:               ticket.ID,
		ExpectStatus:     &inProgress,
		ExpectNoResponse: true,
		ExpectNotMissed:  true,
		SetMissed:        true,
	}, entry)
	if errors.Is(err, repository.ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreErr(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}
	s.metrics.RecordTransition(string(entry.Action))

	var claimant int64
	if flagged.AssignedAdminID != nil {
		claimant = *flagged.AssignedAdminID
	}
	s.publishEvent(ctx, events.New(events.EventResponseMissed, flagged.ID, nil, now,
		events.Recipients{AdminIDs: s.adminIDs(ctx), Group: true},
		events.ResponseMissedPayload{ClaimantID: claimant, UserID: flagged.UserID, CreatedAt: flagged.CreatedAt}))
	return true, nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapStoreErr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// ListOpen returns unclaimed tickets, newest first.
func (s *TicketService) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	return s.ListTickets(ctx, TicketListFilter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen}})
}

// ListAssigned returns the admin's tickets still in progress.
func (s *TicketService) ListAssigned(ctx context.Context, adminID int64) ([]domain.Ticket, error) {
	return s.ListTickets(ctx, TicketListFilter{
		Statuses:   []domain.TicketStatus{domain.TicketStatusInProgress},
		AssigneeID: &adminID,
	})
}

// ListClosed returns the most recently closed tickets.
func (s *TicketService) ListClosed(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = defaultClosedListLimit
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:        []domain.TicketStatus{domain.TicketStatusClosed},
		OrderByClosedAt: true,
		Limit:           limit,
	})
	if err != nil {
		return nil, mapStoreErr(err, "ticket", nil)
	}
	return tickets, nil
}

// ListTickets returns tickets matching filter, newest first.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		UserID:          filter.UserID,
		AssignedAdminID: filter.AssigneeID,
		Statuses:        filter.Statuses,
		Priorities:      filter.Priorities,
		Missed:          filter.Missed,
		CreatedFrom:     filter.CreatedFrom,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	})
	if err != nil {
		return nil, mapStoreErr(err, "ticket", nil)
	}
	return tickets, nil
}

// History returns the audit trail of a ticket in write order.
func (s *TicketService) History(ctx context.Context, ticketID int64) ([]domain.LogEntry, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.logs.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, mapStoreErr(err, "log", nil)
	}
	return entries, nil
}

// explain turns a failed guarded update into the matching domain error by
// re-reading the row. onMismatch classifies a ticket that exists but did not
// satisfy the guard.
func (s *TicketService) explain(ctx context.Context, err error, ticketID int64, onMismatch func(*domain.Ticket) error) error {
	if !errors.Is(err, repository.ErrConditionFailed) {
		return mapStoreErr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	current, getErr := s.tickets.GetByID(ctx, ticketID)
	if getErr != nil {
		return mapStoreErr(getErr, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return onMismatch(current)
}

func claimantMismatch(adminID int64) func(*domain.Ticket) error {
	return func(current *domain.Ticket) error {
		switch {
		case current.Status != domain.TicketStatusInProgress:
			return apperrors.NewInvalidState("ticket is not in progress", ticketDetails(current))
		case !current.ClaimedBy(adminID):
			return apperrors.NewNotClaimant(ticketDetails(current))
		}
		return apperrors.NewConflict("ticket changed concurrently", ticketDetails(current))
	}
}

func ticketDetails(t *domain.Ticket) map[string]any {
	details := map[string]any{"ticket_id": t.ID, "status": t.Status}
	if t.AssignedAdminID != nil {
		details["assigned_admin_id"] = *t.AssignedAdminID
	}
	return details
}

// adminIDs lists every admin for fan-out. A lookup failure only narrows the
// audience; the transition has already been committed.
func (s *TicketService) adminIDs(ctx context.Context) []int64 {
	if s.admins == nil {
		return nil
	}
	admins, err := s.admins.List(ctx)
	if err != nil {
		s.logger.Warn("list admins for notification", zap.Error(err))
		return nil
	}
	ids := make([]int64, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.AdminID)
	}
	return ids
}

// now truncates to the store's timestamp precision so values read back compare equal.
func (s *TicketService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
