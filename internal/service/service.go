package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/fanout"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

// Publisher accepts outbound events for a conversation without blocking.
type Publisher interface {
	Enqueue(conversationID string, pubs ...fanout.Publication) bool
}

// Notifier forwards new messages to offline recipients.
type Notifier interface {
	Notify(msg *domain.Message, recipients []string)
}

type Directory interface {
	CanMessage(ctx context.Context, from, to string) (bool, error)
	BlockStatus(ctx context.Context, me, other string) (domain.BlockStatus, error)
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
	Contacts(ctx context.Context, ownerID string) (map[string]domain.Contact, error)
}

// ConversationLocks serialises commit-and-enqueue per conversation so that
// server_ts order, store order and publish order agree.
type ConversationLocks struct {
	stripes []sync.Mutex
}

func NewConversationLocks(n int) *ConversationLocks {
	if n <= 0 {
		n = 64
	}
	return &ConversationLocks{stripes: make([]sync.Mutex, n)}
}

func (l *ConversationLocks) Lock(conversationID string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	mu := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	mu.Lock()
	return mu.Unlock
}

// loadMember fetches the conversation and checks userID belongs to it.
func loadMember(ctx context.Context, store repository.ConversationStore, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, wrap(domain.ErrNotFound, "conversation %s", conversationID)
		}
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, wrap(domain.ErrForbidden, "user %s is not a participant", userID)
	}
	return conv, nil
}

// positions resolves watermark ids to their server_ts. Ids whose message is
// gone are left out.
func positions(ctx context.Context, store repository.MessageStore, ids []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(ids))
	for _, id := range ids {
		m, err := store.GetMessage(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = m.ServerTS
	}
	return out, nil
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
