package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketClaimed  EventType = "ticket_claimed"
	EventTicketAnswered EventType = "ticket_answered"
	EventTicketClosed   EventType = "ticket_closed"
	EventResponseMissed EventType = "response_missed"
)

// AllTypes lists every event the engine and the watchdog emit.
var AllTypes = []EventType{
	EventTicketCreated,
	EventTicketClaimed,
	EventTicketAnswered,
	EventTicketClosed,
	EventResponseMissed,
}

// Recipients names who should hear about an event.
type Recipients struct {
	AdminIDs []int64 `json:"admin_ids,omitempty"`
	UserIDs  []int64 `json:"user_ids,omitempty"`
	Group    bool    `json:"group"`
}

// Empty reports whether nobody is addressed.
func (r Recipients) Empty() bool {
	return len(r.AdminIDs) == 0 && len(r.UserIDs) == 0 && !r.Group
}

// Event represents a domain event emitted by services.
type Event struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	TicketID   int64      `json:"ticket_id"`
	ActorID    *int64     `json:"actor_id,omitempty"`
	Recipients Recipients `json:"recipients"`
	Timestamp  time.Time  `json:"timestamp"`
	Payload    any        `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticketID int64, actorID *int64, at time.Time, recipients Recipients, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TicketID:   ticketID,
		ActorID:    actorID,
		Recipients: recipients,
		Timestamp:  at,
		Payload:    payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UserID   int64                 `json:"user_id"`
	Priority domain.TicketPriority `json:"priority"`
	Content  domain.MessagePayload `json:"content"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	UserID  int64 `json:"user_id"`
	AdminID int64 `json:"admin_id"`
}

// TicketAnsweredPayload carries the reply for delivery to the requester.
type TicketAnsweredPayload struct {
	UserID        int64                 `json:"user_id"`
	AdminID       int64                 `json:"admin_id"`
	FirstResponse bool                  `json:"first_response"`
	Content       domain.MessagePayload `json:"content"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	UserID  int64 `json:"user_id"`
	AdminID int64 `json:"admin_id"`
}

// ResponseMissedPayload payload.
type ResponseMissedPayload struct {
	ClaimantID int64     `json:"claimant_id"`
	UserID     int64     `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}
