package bot

import (
	"context"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/service"
)

// Telegram rejects longer texts and captions.
const (
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
)

// Sender is the part of the Telegram client used for output.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Messenger delivers notices and payloads through Telegram.
type Messenger struct {
	sender Sender
	logger *zap.Logger
}

// NewMessenger wraps sender.
func NewMessenger(sender Sender, logger *zap.Logger) *Messenger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messenger{sender: sender, logger: logger}
}

var _ service.Messenger = (*Messenger)(nil)

// SendNotice sends text with the actions rendered as an inline keyboard.
func (m *Messenger) SendNotice(_ context.Context, chatID int64, notice service.Notice) error {
	msg := tgbotapi.NewMessage(chatID, truncate(notice.Text, maxMessageRunes))
	if kb := InlineKeyboard(notice.Actions); kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := m.sender.Send(msg); err != nil {
		return fmt.Errorf("send notice to %d: %w", chatID, err)
	}
	return nil
}

// Deliver re-sends a stored payload to chatID, keeping its media kind.
func (m *Messenger) Deliver(_ context.Context, chatID int64, payload domain.MessagePayload, caption string) error {
	var msg tgbotapi.Chattable
	file := tgbotapi.FileID(payload.FileID)
	mediaCaption := truncate(joinText(caption, payload.Caption), maxCaptionRunes)
	switch {
	case payload.FileID == "" || payload.MediaKind == domain.MediaNone:
		msg = tgbotapi.NewMessage(chatID, truncate(joinText(caption, payload.Summary()), maxMessageRunes))
	case payload.MediaKind == domain.MediaPhoto:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = mediaCaption
		msg = photo
	case payload.MediaKind == domain.MediaVideo:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = mediaCaption
		msg = video
	case payload.MediaKind == domain.MediaVoice:
		voice := tgbotapi.NewVoice(chatID, file)
		voice.Caption = mediaCaption
		msg = voice
	default:
		doc := tgbotapi.NewDocument(chatID, file)
		doc.Caption = mediaCaption
		msg = doc
	}
	if _, err := m.sender.Send(msg); err != nil {
		return fmt.Errorf("deliver %s to %d: %w", payload.MediaKind, chatID, err)
	}
	return nil
}

// SendDocument uploads data as a file named name.
func (m *Messenger) SendDocument(_ context.Context, chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = truncate(caption, maxCaptionRunes)
	if _, err := m.sender.Send(doc); err != nil {
		return fmt.Errorf("send document to %d: %w", chatID, err)
	}
	return nil
}

// sendText is used for direct replies, where a failure is only logged.
func (m *Messenger) sendText(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageRunes))
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := m.sender.Send(msg); err != nil {
		m.logger.Warn("send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func joinText(head, body string) string {
	switch {
	case head == "":
		return body
	case body == "":
		return head
	}
	return head + "\n\n" + body
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
