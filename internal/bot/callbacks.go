package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/support-bot/internal/domain"
)

// CallbackAction names an inline button handler.
type CallbackAction string

const (
	ActionView     CallbackAction = "view"
	ActionTake     CallbackAction = "take"
	ActionReply    CallbackAction = "reply"
	ActionClose    CallbackAction = "close"
	ActionPriority CallbackAction = "prio"
	ActionList     CallbackAction = "list"
	ActionStats    CallbackAction = "stats"
	ActionAdmins   CallbackAction = "admins"
	ActionAddAdmin CallbackAction = "add_admin"
	ActionExport   CallbackAction = "export"
)

// Ticket list selectors for ActionList.
const (
	ListOpen   = "open"
	ListMine   = "mine"
	ListClosed = "closed"
)

// Callback is a decoded callback_data string.
type Callback struct {
	Action   CallbackAction
	TicketID int64
	Priority domain.TicketPriority
	Arg      string
}

// ParseCallback decodes callback data such as "take:42", "prio:42:VIP",
// "list:mine" or "admins".
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, ":")
	cb := Callback{Action: CallbackAction(parts[0])}
	switch cb.Action {
	case ActionView, ActionTake, ActionReply, ActionClose:
		if len(parts) != 2 {
			return cb, fmt.Errorf("callback %q: want %s:<ticket>", data, cb.Action)
		}
		id, err := parseTicketID(parts[1])
		if err != nil {
			return cb, fmt.Errorf("callback %q: %w", data, err)
		}
		cb.TicketID = id
	case ActionPriority:
		if len(parts) != 3 {
			return cb, fmt.Errorf("callback %q: want prio:<ticket>:<priority>", data)
		}
		id, err := parseTicketID(parts[1])
		if err != nil {
			return cb, fmt.Errorf("callback %q: %w", data, err)
		}
		cb.TicketID = id
		cb.Priority = domain.TicketPriority(strings.ToUpper(parts[2]))
		if !cb.Priority.Valid() {
			return cb, fmt.Errorf("callback %q: unknown priority", data)
		}
	case ActionList:
		if len(parts) != 2 {
			return cb, fmt.Errorf("callback %q: want list:<open|mine|closed>", data)
		}
		switch parts[1] {
		case ListOpen, ListMine, ListClosed:
			cb.Arg = parts[1]
		default:
			return cb, fmt.Errorf("callback %q: unknown list", data)
		}
	case ActionStats:
		if len(parts) != 2 {
			return cb, fmt.Errorf("callback %q: want stats:<period>", data)
		}
		cb.Arg = parts[1]
	case ActionExport:
		if len(parts) > 2 {
			return cb, fmt.Errorf("callback %q: want export[:<period>]", data)
		}
		if len(parts) == 2 {
			cb.Arg = parts[1]
		}
	case ActionAdmins, ActionAddAdmin:
		if len(parts) != 1 {
			return cb, fmt.Errorf("callback %q: unexpected arguments", data)
		}
	default:
		return cb, fmt.Errorf("callback %q: unknown action", data)
	}
	return cb, nil
}

// String encodes the callback back into callback_data form.
func (c Callback) String() string {
	switch c.Action {
	case ActionView, ActionTake, ActionReply, ActionClose:
		return fmt.Sprintf("%s:%d", c.Action, c.TicketID)
	case ActionPriority:
		return fmt.Sprintf("%s:%d:%s", c.Action, c.TicketID, c.Priority)
	case ActionList, ActionStats:
		return fmt.Sprintf("%s:%s", c.Action, c.Arg)
	case ActionExport:
		if c.Arg != "" {
			return fmt.Sprintf("%s:%s", c.Action, c.Arg)
		}
		return string(c.Action)
	default:
		return string(c.Action)
	}
}

func ticketCallback(action CallbackAction, ticketID int64) string {
	return Callback{Action: action, TicketID: ticketID}.String()
}

func parseTicketID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ticket id %q", raw)
	}
	return id, nil
}
