package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
)

// Action is a button attached to a notice. Data is the callback payload the
// messaging layer routes back to the bot.
type Action struct {
	Label string
	Data  string
}

// Notice is a rendered-agnostic message: text plus optional actions.
type Notice struct {
	Text    string
	Actions []Action
}

// Messenger delivers content to chat recipients.
type Messenger interface {
	SendNotice(ctx context.Context, chatID int64, notice Notice) error
	Deliver(ctx context.Context, chatID int64, payload domain.MessagePayload, caption string) error
	SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error
}

// NotificationService turns domain events into messages.
type NotificationService struct {
	dispatcher events.Dispatcher
	messenger  Messenger
	groupID    int64
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for notifications.
type NotificationDependencies struct {
	Dispatcher  events.Dispatcher
	Messenger   Messenger
	GroupChatID int64
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		messenger:  deps.Messenger,
		groupID:    deps.GroupChatID,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketClaimed, n.handleTicketClaimed)
	n.dispatcher.Subscribe(events.EventTicketAnswered, n.handleTicketAnswered)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	n.dispatcher.Subscribe(events.EventResponseMissed, n.handleResponseMissed)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	notice := Notice{
		Text: fmt.Sprintf("New ticket #%d from user %d [%s]\n%s",
			event.TicketID, payload.UserID, payload.Priority, describe(payload.Content)),
		Actions: []Action{
			{Label: "View", Data: fmt.Sprintf("view:%d", event.TicketID)},
			{Label: "Take", Data: fmt.Sprintf("take:%d", event.TicketID)},
		},
	}
	n.fanOut(ctx, event, notice)
	return nil
}

func (n *NotificationService) handleTicketClaimed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClaimedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.sendUsers(ctx, event, Notice{Text: fmt.Sprintf("Your ticket #%d has been taken by an operator.", event.TicketID)})
	n.sendGroup(ctx, event, Notice{Text: fmt.Sprintf("Ticket #%d taken by admin %d", event.TicketID, payload.AdminID)})
	return nil
}

func (n *NotificationService) handleTicketAnswered(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAnsweredPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	caption := fmt.Sprintf("Reply to ticket #%d", event.TicketID)
	for _, userID := range event.Recipients.UserIDs {
		if err := n.messenger.Deliver(ctx, userID, payload.Content, caption); err != nil {
			n.deliveryFailed(event, userID, err)
		}
	}
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.sendUsers(ctx, event, Notice{Text: fmt.Sprintf("Your ticket #%d has been closed.", event.TicketID)})
	n.sendGroup(ctx, event, Notice{Text: fmt.Sprintf("Ticket #%d closed by admin %d", event.TicketID, payload.AdminID)})
	return nil
}

func (n *NotificationService) handleResponseMissed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ResponseMissedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	notice := Notice{
		Text: fmt.Sprintf("Missed response: ticket #%d claimed by admin %d has no reply since %s",
			event.TicketID, payload.ClaimantID, payload.CreatedAt.Format("2006-01-02 15:04")),
		Actions: []Action{{Label: "View", Data: fmt.Sprintf("view:%d", event.TicketID)}},
	}
	n.fanOut(ctx, event, notice)
	return nil
}

// fanOut sends notice to every admin, user and the group named by the event.
func (n *NotificationService) fanOut(ctx context.Context, event events.Event, notice Notice) {
	for _, adminID := range event.Recipients.AdminIDs {
		if err := n.messenger.SendNotice(ctx, adminID, notice); err != nil {
			n.deliveryFailed(event, adminID, err)
		}
	}
	n.sendUsers(ctx, event, notice)
	n.sendGroup(ctx, event, notice)
}

func (n *NotificationService) sendUsers(ctx context.Context, event events.Event, notice Notice) {
	for _, userID := range event.Recipients.UserIDs {
		if err := n.messenger.SendNotice(ctx, userID, notice); err != nil {
			n.deliveryFailed(event, userID, err)
		}
	}
}

func (n *NotificationService) sendGroup(ctx context.Context, event events.Event, notice Notice) {
	if !event.Recipients.Group || n.groupID == 0 {
		return
	}
	if err := n.messenger.SendNotice(ctx, n.groupID, notice); err != nil {
		n.deliveryFailed(event, n.groupID, err)
	}
}

func (n *NotificationService) deliveryFailed(event events.Event, chatID int64, err error) {
	n.metrics.RecordNotificationFailure(string(event.Type))
	n.logger.Warn("notification delivery failed",
		zap.String("event_type", string(event.Type)),
		zap.Int64("ticket_id", event.TicketID),
		zap.Int64("chat_id", chatID),
		zap.Error(err))
}

func describe(p domain.MessagePayload) string {
	text := p.Summary()
	if p.MediaKind != domain.MediaNone {
		if text == "" {
			return fmt.Sprintf("[%s]", p.MediaKind)
		}
		return fmt.Sprintf("[%s] %s", p.MediaKind, text)
	}
	return text
}
