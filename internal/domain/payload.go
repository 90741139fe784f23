package domain

import "encoding/json"

// MediaKind differentiates attachments carried by a message.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaVoice    MediaKind = "voice"
)

// MessagePayload is the serialized form of an inbound chat message.
// The engine stores it opaquely; only the messaging layer interprets it.
type MessagePayload struct {
	ChatID    int64     `json:"chat_id,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
	FileID    string    `json:"file_id,omitempty"`
}

// TextPayload wraps plain text, as sent through the HTTP API.
func TextPayload(text string) MessagePayload {
	return MessagePayload{Text: text}
}

// Encode serializes the payload.
func (p MessagePayload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// Summary returns the human readable part of the payload.
func (p MessagePayload) Summary() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Caption
}

// DecodePayload parses a stored payload. Empty input yields a zero payload.
func DecodePayload(raw []byte) (MessagePayload, error) {
	var p MessagePayload
	if len(raw) == 0 {
		return p, nil
	}
	err := json.Unmarshal(raw, &p)
	return p, err
}
