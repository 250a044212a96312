package domain

import (
	"sort"
	"strings"
	"time"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Conversation struct {
	ID             string           `bson:"_id" json:"id"`
	Type           ConversationType `bson:"type" json:"type"`
	ParticipantIDs []string         `bson:"participant_ids" json:"participant_ids"`
	// PairKey is set only for direct conversations and carries the unique index;
	// a unique multikey index on participant_ids would constrain each user to one chat.
	PairKey string `bson:"pair_key,omitempty" json:"-"`

	LastMessageAt       *time.Time `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
	LastMessagePreview  string     `bson:"last_message_preview,omitempty" json:"last_message_preview,omitempty"`
	LastMessageID       string     `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	LastMessageSenderID string     `bson:"last_message_sender_id,omitempty" json:"last_message_sender_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Others returns every participant except userID, in stored order.
func (c *Conversation) Others(userID string) []string {
	out := make([]string, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// Counterpart is the other side of a direct conversation.
func (c *Conversation) Counterpart(userID string) string {
	if c.Type != ConversationDirect {
		return ""
	}
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// CanonicalPair sorts a direct pair and derives its unique key.
func CanonicalPair(a, b string) ([]string, string) {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids, strings.Join(ids, ":")
}
