package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed
}

// TicketPriority enumerates ticket urgency.
type TicketPriority string

const (
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityUrgent TicketPriority = "URGENT"
	TicketPriorityVIP    TicketPriority = "VIP"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityNormal, TicketPriorityUrgent, TicketPriorityVIP:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              int64
	UserID          int64
	Status          TicketStatus
	AssignedAdminID *int64
	Priority        TicketPriority
	MissedFlag      bool
	Payload         []byte
	CreatedAt       time.Time
	ClosedAt        *time.Time
	FirstResponseAt *time.Time
}

// ClaimedBy reports whether adminID is the current claimant.
func (t *Ticket) ClaimedBy(adminID int64) bool {
	return t.AssignedAdminID != nil && *t.AssignedAdminID == adminID
}

// Clone returns a deep copy so callers never share pointer fields.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AssignedAdminID != nil {
		v := *t.AssignedAdminID
		cp.AssignedAdminID = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		cp.ClosedAt = &v
	}
	if t.FirstResponseAt != nil {
		v := *t.FirstResponseAt
		cp.FirstResponseAt = &v
	}
	if t.Payload != nil {
		cp.Payload = append([]byte(nil), t.Payload...)
	}
	return &cp
}
