package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/service"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

const maxListButtons = 30

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	switch {
	case msg.Contact != nil:
		b.handleContact(ctx, msg)
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case msg.Chat.IsPrivate():
		b.handlePrivateMessage(ctx, msg)
	}
}

func (b *Bot) handleContact(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.Chat.IsPrivate() {
		return
	}
	contact := msg.Contact
	if contact.UserID != 0 && contact.UserID != msg.From.ID {
		b.messenger.sendText(msg.Chat.ID, "Please share your own contact.", nil)
		return
	}
	role, ok := b.resolveRole(ctx, msg.Chat.ID, msg.From.ID)
	if !ok {
		return
	}
	if role.IsStaff() {
		b.messenger.sendText(msg.Chat.ID, "You are an admin, no registration is needed. Use /admin.", tgbotapi.NewRemoveKeyboard(true))
		return
	}
	name := strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	if name == "" {
		name = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	if _, err := b.users.RegisterUser(ctx, msg.From.ID, name, contact.PhoneNumber); err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	b.messenger.sendText(msg.Chat.ID,
		"Thank you, you are registered. Describe your problem in this chat and an operator will answer here.",
		tgbotapi.NewRemoveKeyboard(true))
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID, from := msg.Chat.ID, msg.From.ID
	switch msg.Command() {
	case "start":
		b.start(ctx, msg)
	case "help":
		b.help(ctx, chatID, from)
	case "admin":
		if role, ok := b.requireStaff(ctx, chatID, from); ok {
			b.sendMenu(ctx, chatID, role)
		}
	case "cancel":
		b.clearState(ctx, from)
		b.messenger.sendText(chatID, "Cancelled.", nil)
	case "stats":
		if _, ok := b.requireStaff(ctx, chatID, from); !ok {
			return
		}
		period, err := service.ParsePeriod(msg.CommandArguments())
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.sendTicketStats(ctx, chatID, period)
	case "mystats":
		if _, ok := b.requireStaff(ctx, chatID, from); ok {
			b.sendMyStats(ctx, chatID, from)
		}
	case "adminstats":
		if b.requireOwner(ctx, chatID, from) {
			b.sendAdminStats(ctx, chatID)
		}
	case "open":
		if _, ok := b.requireStaff(ctx, chatID, from); ok {
			b.sendList(ctx, chatID, from, ListOpen)
		}
	case "export":
		if b.requireOwner(ctx, chatID, from) {
			b.sendExport(ctx, chatID, msg.CommandArguments())
		}
	case "token":
		if !msg.Chat.IsPrivate() {
			b.messenger.sendText(chatID, "Ask for a token in a private chat with the bot.", nil)
			return
		}
		if _, ok := b.requireStaff(ctx, chatID, from); ok {
			b.sendToken(ctx, chatID, from)
		}
	default:
		b.messenger.sendText(chatID, "Unknown command. Try /help.", nil)
	}
}

func (b *Bot) start(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	role, ok := b.resolveRole(ctx, chatID, msg.From.ID)
	if !ok {
		return
	}
	switch {
	case role.IsStaff():
		b.sendMenu(ctx, chatID, role)
	case role == domain.RoleUser:
		b.messenger.sendText(chatID, "Hello! Describe your problem in this chat and an operator will answer here.", nil)
	case msg.Chat.IsPrivate():
		b.askForContact(chatID)
	}
}

func (b *Bot) help(ctx context.Context, chatID, from int64) {
	role, ok := b.resolveRole(ctx, chatID, from)
	if !ok {
		return
	}
	text := "Send any message in this chat to open a support ticket. Use /start to register."
	if role.IsStaff() {
		text = "/admin opens the admin panel\n" +
			"/open lists unclaimed tickets\n" +
			"/stats [day|week|month] shows ticket statistics\n" +
			"/mystats shows your own statistics\n" +
			"/token issues an API token (private chat)\n" +
			"/cancel aborts the current reply"
		if role.IsOwner() {
			text += "\n/adminstats shows per-admin statistics\n/export [day|week|month] sends tickets as CSV (default month)"
		}
	}
	b.messenger.sendText(chatID, text, nil)
}

// handlePrivateMessage either continues a pending conversation step or opens
// a ticket for a registered user.
func (b *Bot) handlePrivateMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID, from := msg.Chat.ID, msg.From.ID
	state, err := b.states.Get(ctx, from)
	if err != nil {
		b.logger.Warn("read conversation state", zap.Int64("identity", from), zap.Error(err))
	}
	if state != nil {
		b.continueConversation(ctx, msg, *state)
		return
	}

	role, ok := b.resolveRole(ctx, chatID, from)
	if !ok {
		return
	}
	switch {
	case role.IsStaff():
		b.messenger.sendText(chatID, "Admins cannot open tickets. Use /admin to work with tickets.", nil)
	case role == domain.RoleUser:
		ticket, err := b.tickets.CreateTicket(ctx, from, domain.TicketPriorityNormal, payloadFromMessage(msg))
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.messenger.sendText(chatID, fmt.Sprintf("Your request is registered as ticket #%d. An operator will answer here.", ticket.ID), nil)
	default:
		b.askForContact(chatID)
	}
}

func (b *Bot) continueConversation(ctx context.Context, msg *tgbotapi.Message, state State) {
	chatID, from := msg.Chat.ID, msg.From.ID
	switch state.Kind {
	case StateAwaitingReply:
		ticket, err := b.tickets.RecordResponse(ctx, state.TicketID, from, payloadFromMessage(msg))
		if err != nil && apperrors.IsCode(err, apperrors.CodeValidation) {
			b.messenger.sendText(chatID, "The reply is empty. Send text or media, or /cancel.", nil)
			return
		}
		b.clearState(ctx, from)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.notice(ctx, chatID, service.Notice{
			Text:    fmt.Sprintf("Reply to ticket #%d sent.", ticket.ID),
			Actions: ticketActions(ticket, from),
		})
	case StateAwaitingAdminID:
		adminID, err := strconv.ParseInt(strings.TrimSpace(msg.Text), 10, 64)
		if err != nil || adminID <= 0 {
			b.messenger.sendText(chatID, "Send the numeric Telegram id of the new admin, or /cancel.", nil)
			return
		}
		b.clearState(ctx, from)
		admin, err := b.admins.AddAdmin(ctx, from, adminID, "")
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.messenger.sendText(chatID, fmt.Sprintf("Admin %d added.", admin.AdminID), nil)
	default:
		b.clearState(ctx, from)
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Debug("answer callback", zap.Error(err))
	}
	chatID := q.From.ID
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}
	from := q.From.ID

	cb, err := ParseCallback(q.Data)
	if err != nil {
		b.logger.Warn("unknown callback", zap.String("data", q.Data), zap.Error(err))
		return
	}
	role, ok := b.requireStaff(ctx, chatID, from)
	if !ok {
		return
	}

	switch cb.Action {
	case ActionView:
		b.viewTicket(ctx, chatID, from, cb.TicketID)
	case ActionTake:
		ticket, err := b.tickets.ClaimTicket(ctx, cb.TicketID, from)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.notice(ctx, chatID, service.Notice{
			Text:    fmt.Sprintf("Ticket #%d taken by %s.", ticket.ID, adminName(q.From)),
			Actions: ticketActions(ticket, from),
		})
	case ActionReply:
		b.promptReply(ctx, chatID, from, cb.TicketID)
	case ActionClose:
		ticket, err := b.tickets.CloseTicket(ctx, cb.TicketID, from)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.messenger.sendText(chatID, fmt.Sprintf("Ticket #%d closed.", ticket.ID), nil)
	case ActionPriority:
		ticket, err := b.tickets.SetPriority(ctx, cb.TicketID, from, cb.Priority)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.notice(ctx, chatID, service.Notice{
			Text:    fmt.Sprintf("Ticket #%d priority set to %s.", ticket.ID, ticket.Priority),
			Actions: ticketActions(ticket, from),
		})
	case ActionList:
		b.sendList(ctx, chatID, from, cb.Arg)
	case ActionStats:
		period, err := service.ParsePeriod(cb.Arg)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.sendTicketStats(ctx, chatID, period)
	case ActionAdmins:
		if !role.IsOwner() {
			b.replyError(chatID, apperrors.NewPermissionDenied("owner role required"))
			return
		}
		b.sendAdmins(ctx, chatID)
	case ActionAddAdmin:
		if !role.IsOwner() {
			b.replyError(chatID, apperrors.NewPermissionDenied("owner role required"))
			return
		}
		if err := b.states.Set(ctx, from, State{Kind: StateAwaitingAdminID}); err != nil {
			b.replyError(chatID, apperrors.NewStoreUnavailable(err))
			return
		}
		b.messenger.sendText(from, "Send the numeric Telegram id of the new admin. /cancel to abort.", nil)
	case ActionExport:
		if !role.IsOwner() {
			b.replyError(chatID, apperrors.NewPermissionDenied("owner role required"))
			return
		}
		b.sendExport(ctx, chatID, cb.Arg)
	}
}

func (b *Bot) viewTicket(ctx context.Context, chatID, viewer, ticketID int64) {
	ticket, err := b.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	user, _ := b.users.GetUser(ctx, ticket.UserID)
	payload, _ := domain.DecodePayload(ticket.Payload)
	b.notice(ctx, chatID, service.Notice{
		Text:    formatTicket(ticket, user, payload),
		Actions: ticketActions(ticket, viewer),
	})
	if payload.MediaKind != domain.MediaNone && payload.FileID != "" {
		if err := b.messenger.Deliver(ctx, chatID, payload, fmt.Sprintf("Attachment of ticket #%d", ticket.ID)); err != nil {
			b.logger.Warn("resend ticket media", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}
}

// promptReply arms the reply state. The prompt goes to the admin's private
// chat since replies are only read there.
func (b *Bot) promptReply(ctx context.Context, chatID, from, ticketID int64) {
	ticket, err := b.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	switch {
	case ticket.Status != domain.TicketStatusInProgress:
		b.replyError(chatID, apperrors.NewInvalidState("ticket is not in progress", nil))
		return
	case !ticket.ClaimedBy(from):
		b.replyError(chatID, apperrors.NewNotClaimant(nil))
		return
	}
	if err := b.states.Set(ctx, from, State{Kind: StateAwaitingReply, TicketID: ticketID}); err != nil {
		b.replyError(chatID, apperrors.NewStoreUnavailable(err))
		return
	}
	b.messenger.sendText(from, fmt.Sprintf("Send your reply to ticket #%d. /cancel to abort.", ticketID), nil)
}

func (b *Bot) sendMenu(ctx context.Context, chatID int64, role domain.Role) {
	b.notice(ctx, chatID, service.Notice{Text: "Admin panel", Actions: adminMenu(role)})
}

func (b *Bot) sendList(ctx context.Context, chatID, from int64, which string) {
	var (
		tickets []domain.Ticket
		title   string
		err     error
	)
	switch which {
	case ListMine:
		title = "Your tickets in progress"
		tickets, err = b.tickets.ListAssigned(ctx, from)
	case ListClosed:
		title = "Recently closed tickets"
		tickets, err = b.tickets.ListClosed(ctx, 0)
	default:
		title = "Open tickets"
		tickets, err = b.tickets.ListOpen(ctx)
	}
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(tickets) == 0 {
		b.messenger.sendText(chatID, title+": none.", nil)
		return
	}
	shown := tickets[:min(len(tickets), maxListButtons)]
	b.notice(ctx, chatID, service.Notice{Text: formatTicketList(title, tickets), Actions: listActions(shown)})
}

func (b *Bot) sendTicketStats(ctx context.Context, chatID int64, period service.Period) {
	stats, err := b.analytics.TicketStats(ctx, period)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	sla, err := b.analytics.SLAMetrics(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	hours, err := b.analytics.HourlyDistribution(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.messenger.sendText(chatID, formatTicketStats(stats, sla, hours), nil)
}

func (b *Bot) sendMyStats(ctx context.Context, chatID, adminID int64) {
	stats, err := b.analytics.AdminStats(ctx, &adminID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	mine := service.AdminStats{AdminID: adminID}
	if len(stats) > 0 {
		mine = stats[0]
	}
	b.messenger.sendText(chatID, formatAdminStats("Your statistics", []service.AdminStats{mine}), nil)
}

func (b *Bot) sendAdminStats(ctx context.Context, chatID int64) {
	stats, err := b.analytics.AdminStats(ctx, nil)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	missed, err := b.analytics.MissedStats(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.messenger.sendText(chatID, formatAdminStats("Admin statistics", stats)+"\n\n"+formatMissedStats(missed), nil)
}

func (b *Bot) sendAdmins(ctx context.Context, chatID int64) {
	admins, err := b.admins.ListAdmins(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.messenger.sendText(chatID, formatAdmins(admins), nil)
}

// sendExport sends the tickets of the last period as CSV. An empty period
// means the last 30 days.
func (b *Bot) sendExport(ctx context.Context, chatID int64, rawPeriod string) {
	period := service.PeriodMonth
	if strings.TrimSpace(rawPeriod) != "" {
		var err error
		if period, err = service.ParsePeriod(rawPeriod); err != nil {
			b.replyError(chatID, err)
			return
		}
	}
	var buf bytes.Buffer
	rows, err := b.analytics.ExportPeriodCSV(ctx, &buf, period)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	name := fmt.Sprintf("tickets-%s-%s.csv", period, b.clock.Now().UTC().Format("20060102-1504"))
	caption := fmt.Sprintf("%d tickets (%s)", rows, period)
	if err := b.messenger.SendDocument(ctx, chatID, name, buf.Bytes(), caption); err != nil {
		b.logger.Warn("send export", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendToken(ctx context.Context, chatID, adminID int64) {
	token, expiresAt, err := b.users.IssueToken(ctx, adminID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.messenger.sendText(chatID, fmt.Sprintf("API token, valid until %s UTC:\n%s",
		expiresAt.UTC().Format("2006-01-02 15:04"), token), nil)
}

func (b *Bot) askForContact(chatID int64) {
	b.messenger.sendText(chatID, "Welcome! Share your contact to register with support.", contactKeyboard())
}

func (b *Bot) notice(ctx context.Context, chatID int64, notice service.Notice) {
	if err := b.messenger.SendNotice(ctx, chatID, notice); err != nil {
		b.logger.Warn("send notice", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) clearState(ctx context.Context, identity int64) {
	if err := b.states.Clear(ctx, identity); err != nil {
		b.logger.Warn("clear conversation state", zap.Int64("identity", identity), zap.Error(err))
	}
}

func (b *Bot) resolveRole(ctx context.Context, chatID, identity int64) (domain.Role, bool) {
	role, err := b.roles.ResolveRole(ctx, identity)
	if err != nil {
		b.replyError(chatID, err)
		return role, false
	}
	return role, true
}

func (b *Bot) requireStaff(ctx context.Context, chatID, identity int64) (domain.Role, bool) {
	role, err := b.roles.RequireStaff(ctx, identity)
	if err != nil {
		b.replyError(chatID, err)
		return role, false
	}
	return role, true
}

func (b *Bot) requireOwner(ctx context.Context, chatID, identity int64) bool {
	if err := b.roles.RequireOwner(ctx, identity); err != nil {
		b.replyError(chatID, err)
		return false
	}
	return true
}

func (b *Bot) replyError(chatID int64, err error) {
	domainErr := apperrors.ToDomainError(err)
	if domainErr.HTTPStatus >= 500 && !apperrors.Retryable(err) {
		b.logger.Error("bot action failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	b.messenger.sendText(chatID, errorText(domainErr), nil)
}

func errorText(err *apperrors.DomainError) string {
	switch err.Code {
	case apperrors.CodePermissionDenied:
		return "You are not allowed to do that."
	case apperrors.CodeAlreadyClaimed:
		return "This ticket has already been taken by another admin."
	case apperrors.CodeNotClaimant:
		return "This ticket is handled by another admin."
	case apperrors.CodeInvalidState:
		return "The ticket is not in a state that allows this: " + err.Message + "."
	case apperrors.CodeUserNotRegistered:
		return "Please register first: send /start and share your contact."
	case apperrors.CodeNotFound:
		return "Not found."
	case apperrors.CodeStoreUnavailable:
		return "Support is temporarily unavailable, please try again in a minute."
	case apperrors.CodeValidation, apperrors.CodeConflict:
		if err.Message != "" {
			return strings.ToUpper(err.Message[:1]) + err.Message[1:] + "."
		}
	}
	return "Something went wrong, please try again later."
}

// payloadFromMessage captures what is needed to show the message again.
func payloadFromMessage(msg *tgbotapi.Message) domain.MessagePayload {
	p := domain.MessagePayload{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text,
		Caption:   msg.Caption,
	}
	switch {
	case len(msg.Photo) > 0:
		p.MediaKind = domain.MediaPhoto
		p.FileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		p.MediaKind = domain.MediaVideo
		p.FileID = msg.Video.FileID
	case msg.Voice != nil:
		p.MediaKind = domain.MediaVoice
		p.FileID = msg.Voice.FileID
	case msg.Document != nil:
		p.MediaKind = domain.MediaDocument
		p.FileID = msg.Document.FileID
	}
	return p
}

func adminName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return strconv.FormatInt(u.ID, 10)
}
