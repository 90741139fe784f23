package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/service"
)

const buttonsPerRow = 2

// InlineKeyboard lays out actions two per row. It returns nil when there is
// nothing to show so the message goes out without markup.
func InlineKeyboard(actions []service.Action) *tgbotapi.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for start := 0; start < len(actions); start += buttonsPerRow {
		end := min(start+buttonsPerRow, len(actions))
		row := make([]tgbotapi.InlineKeyboardButton, 0, end-start)
		for _, a := range actions[start:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
		}
		rows = append(rows, row)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func adminMenu(role domain.Role) []service.Action {
	actions := []service.Action{
		{Label: "Open tickets", Data: Callback{Action: ActionList, Arg: ListOpen}.String()},
		{Label: "My tickets", Data: Callback{Action: ActionList, Arg: ListMine}.String()},
		{Label: "Closed tickets", Data: Callback{Action: ActionList, Arg: ListClosed}.String()},
		{Label: "Stats today", Data: Callback{Action: ActionStats, Arg: string(service.PeriodDay)}.String()},
		{Label: "Stats week", Data: Callback{Action: ActionStats, Arg: string(service.PeriodWeek)}.String()},
		{Label: "Stats month", Data: Callback{Action: ActionStats, Arg: string(service.PeriodMonth)}.String()},
	}
	if role.IsOwner() {
		actions = append(actions,
			service.Action{Label: "Admins", Data: string(ActionAdmins)},
			service.Action{Label: "Add admin", Data: string(ActionAddAdmin)},
			service.Action{Label: "Export", Data: string(ActionExport)},
		)
	}
	return actions
}

// ticketActions returns the buttons viewer may use on ticket.
func ticketActions(ticket *domain.Ticket, viewerID int64) []service.Action {
	switch {
	case ticket.Status == domain.TicketStatusOpen:
		return []service.Action{{Label: "Take", Data: ticketCallback(ActionTake, ticket.ID)}}
	case ticket.Status == domain.TicketStatusInProgress && ticket.ClaimedBy(viewerID):
		actions := []service.Action{
			{Label: "Reply", Data: ticketCallback(ActionReply, ticket.ID)},
			{Label: "Close", Data: ticketCallback(ActionClose, ticket.ID)},
		}
		for _, p := range []domain.TicketPriority{domain.TicketPriorityNormal, domain.TicketPriorityUrgent, domain.TicketPriorityVIP} {
			if p == ticket.Priority {
				continue
			}
			actions = append(actions, service.Action{
				Label: "Priority " + string(p),
				Data:  Callback{Action: ActionPriority, TicketID: ticket.ID, Priority: p}.String(),
			})
		}
		return actions
	}
	return nil
}

func listActions(tickets []domain.Ticket) []service.Action {
	actions := make([]service.Action, 0, len(tickets))
	for _, t := range tickets {
		actions = append(actions, service.Action{
			Label: "#" + formatID(t.ID),
			Data:  ticketCallback(ActionView, t.ID),
		})
	}
	return actions
}

func contactKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("Share contact")),
	)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}
