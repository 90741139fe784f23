package dto

import (
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
)

// TicketListQuery captures query filters for GET /tickets.
type TicketListQuery struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	AssigneeID *int64
	Missed     *bool
	Page       int
	PageSize   int
}

// TicketResponse is the API view of a ticket.
type TicketResponse struct {
	ID              int64                 `json:"id"`
	UserID          int64                 `json:"user_id"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	AssignedAdminID *int64                `json:"assigned_admin_id"`
	MissedFlag      bool                  `json:"missed_flag"`
	Text            string                `json:"text"`
	MediaKind       domain.MediaKind      `json:"media_kind,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	FirstResponseAt *time.Time            `json:"first_response_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
}

// TicketDetailResponse adds the requester to a ticket.
type TicketDetailResponse struct {
	TicketResponse
	User *UserResponse `json:"user,omitempty"`
}

// LogEntryResponse is one audit trail entry.
type LogEntryResponse struct {
	ID        int64            `json:"id"`
	Action    domain.LogAction `json:"action"`
	AdminID   *int64           `json:"admin_id"`
	CreatedAt time.Time        `json:"created_at"`
}

// RecordResponseRequest payload for POST /tickets/:id/responses.
type RecordResponseRequest struct {
	Text string `json:"text" validate:"required,max=4096"`
}

// SetPriorityRequest payload for PATCH /tickets/:id/priority.
type SetPriorityRequest struct {
	Priority domain.TicketPriority `json:"priority" validate:"required,oneof=NORMAL URGENT VIP"`
}

// NewTicketResponse converts a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	payload, _ := domain.DecodePayload(t.Payload)
	return TicketResponse{
		ID:              t.ID,
		UserID:          t.UserID,
		Status:          t.Status,
		Priority:        t.Priority,
		AssignedAdminID: t.AssignedAdminID,
		MissedFlag:      t.MissedFlag,
		Text:            payload.Summary(),
		MediaKind:       payload.MediaKind,
		CreatedAt:       t.CreatedAt,
		FirstResponseAt: t.FirstResponseAt,
		ClosedAt:        t.ClosedAt,
	}
}

// NewTicketList converts a slice of tickets.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// NewLogEntryList converts audit entries.
func NewLogEntryList(entries []domain.LogEntry) []LogEntryResponse {
	items := make([]LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, LogEntryResponse{
			ID:        e.ID,
			Action:    e.Action,
			AdminID:   e.AdminID,
			CreatedAt: e.CreatedAt,
		})
	}
	return items
}
