package domain

import "time"

// LogAction identifies the audited transition.
type LogAction string

const (
	LogActionCreated         LogAction = "ticket_created"
	LogActionClaimed         LogAction = "ticket_claimed"
	LogActionAnswered        LogAction = "ticket_answered"
	LogActionClosed          LogAction = "ticket_closed"
	LogActionPriorityChanged LogAction = "priority_changed"
	LogActionResponseMissed  LogAction = "response_missed"
)

// LogEntry is an immutable audit trail entry.
type LogEntry struct {
	ID        int64
	Action    LogAction
	TicketID  int64
	AdminID   *int64
	CreatedAt time.Time
}
