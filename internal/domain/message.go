package domain

import (
	"fmt"
	"strings"
	"time"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageFile   MessageType = "file"
	MessageVoice  MessageType = "voice"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageFile, MessageVoice, MessageSystem:
		return true
	}
	return false
}

type Media struct {
	URL      string `bson:"url" json:"url"`
	Type     string `bson:"type,omitempty" json:"type,omitempty"`
	FileName string `bson:"file_name,omitempty" json:"file_name,omitempty"`
	Size     int64  `bson:"size,omitempty" json:"size,omitempty"`
	ThumbURL string `bson:"thumb_url,omitempty" json:"thumb_url,omitempty"`
}

// Message is append-only; the core never mutates a stored message.
type Message struct {
	ID               string      `bson:"message_id" json:"message_id"`
	ConversationID   string      `bson:"conversation_id" json:"conversation_id"`
	SenderID         string      `bson:"sender_id" json:"sender_id"`
	ServerTS         time.Time   `bson:"server_ts" json:"server_ts"`
	Type             MessageType `bson:"type" json:"type"`
	Text             string      `bson:"text,omitempty" json:"text,omitempty"`
	Media            *Media      `bson:"media,omitempty" json:"media,omitempty"`
	ReplyToMessageID string      `bson:"reply_to_message_id,omitempty" json:"reply_to_message_id,omitempty"`
	CreatedAt        time.Time   `bson:"created_at" json:"created_at"`
}

// Preview is the conversation-list snippet for the message.
func (m *Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	return "[Media]"
}

// After reports whether m sorts strictly after o: server_ts first, message_id on ties.
func (m *Message) After(o *Message) bool {
	if !m.ServerTS.Equal(o.ServerTS) {
		return m.ServerTS.After(o.ServerTS)
	}
	return m.ID > o.ID
}

type Payload struct {
	Type             MessageType `json:"type"`
	Text             string      `json:"text,omitempty"`
	Media            *Media      `json:"media,omitempty"`
	ReplyToMessageID string      `json:"reply_to_message_id,omitempty"`
}

func (p *Payload) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("unknown message type %q: %w", p.Type, ErrInvalidArgument)
	}
	hasText := strings.TrimSpace(p.Text) != ""
	hasMedia := p.Media != nil && p.Media.URL != ""
	if !hasText && !hasMedia {
		return fmt.Errorf("message needs text or media: %w", ErrInvalidArgument)
	}
	if p.Media != nil && p.Media.URL == "" {
		return fmt.Errorf("media url missing: %w", ErrInvalidArgument)
	}
	return nil
}
