package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
)

// Cursor is a position in a conversation's history, ordered by server_ts then
// message_id.
type Cursor struct {
	ServerTS  time.Time
	MessageID string
}

type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	FindDirect(ctx context.Context, pairKey string) (*domain.Conversation, error)
	// InsertConversation returns domain.ErrConflict when the direct pair already exists.
	InsertConversation(ctx context.Context, c *domain.Conversation) error
	ListConversationsForUser(ctx context.Context, userID string) ([]*domain.Conversation, error)
	// TouchLastMessage moves the cached last-message fields forward; older messages are ignored.
	TouchLastMessage(ctx context.Context, m *domain.Message) error
}

type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	// InsertMessage returns domain.ErrConflict when message_id is taken.
	InsertMessage(ctx context.Context, m *domain.Message) error
	// ListMessages returns up to limit messages newest first, strictly before cursor when given.
	ListMessages(ctx context.Context, conversationID string, limit int, before *Cursor) ([]*domain.Message, error)
	LatestMessage(ctx context.Context, conversationID string) (*domain.Message, error)
	// CountFromOthers counts messages not sent by userID, newer than after when given.
	CountFromOthers(ctx context.Context, conversationID, userID string, after *time.Time) (int64, error)
}

type ReceiptStore interface {
	GetReceipt(ctx context.Context, conversationID, userID string) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, conversationID string) ([]*domain.Receipt, error)
	// AdvanceWatermark sets the kind watermark to next only if it still holds
	// expected ("" meaning unset). It reports whether the swap happened.
	AdvanceWatermark(ctx context.Context, kind domain.ReceiptKind, conversationID, userID, expected, next string, at time.Time) (bool, error)
}

type BlockStore interface {
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
}

type ContactStore interface {
	ListContacts(ctx context.Context, ownerID string) ([]domain.Contact, error)
}

type UserStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

type DeviceTokenStore interface {
	ListDeviceTokens(ctx context.Context, userID string) ([]domain.DeviceToken, error)
}

type Store interface {
	ConversationStore
	MessageStore
	ReceiptStore
	BlockStore
	ContactStore
	UserStore
	DeviceTokenStore
	Ping(ctx context.Context) error
}
