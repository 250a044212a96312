package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
)

// MemoryStore is an in-process Store used by tests and local runs. It enforces
// the same unique constraints as the Mongo indexes.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	pairs         map[string]string
	messages      map[string]*domain.Message
	byConv        map[string][]*domain.Message
	receipts      map[string]*domain.Receipt
	blocks        map[string]bool
	contacts      map[string][]domain.Contact
	users         map[string]domain.Profile
	tokens        map[string][]domain.DeviceToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*domain.Conversation),
		pairs:         make(map[string]string),
		messages:      make(map[string]*domain.Message),
		byConv:        make(map[string][]*domain.Message),
		receipts:      make(map[string]*domain.Receipt),
		blocks:        make(map[string]bool),
		contacts:      make(map[string][]domain.Contact),
		users:         make(map[string]domain.Profile),
		tokens:        make(map[string][]domain.DeviceToken),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func pairOf(a, b string) string { return a + "\x00" + b }

// PutUser registers a profile.
func (s *MemoryStore) PutUser(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[p.ID] = p
}

func (s *MemoryStore) Block(blockerID, blockedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[pairOf(blockerID, blockedID)] = true
}

func (s *MemoryStore) AddContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.OwnerID] = append(s.contacts[c.OwnerID], c)
}

func (s *MemoryStore) AddDeviceToken(t domain.DeviceToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.UserID] = append(s.tokens[t.UserID], t)
}

// MessageCount returns how many messages are stored for a conversation.
func (s *MemoryStore) MessageCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byConv[conversationID])
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	out.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		out.LastMessageAt = &t
	}
	return &out
}

func copyMessage(m *domain.Message) *domain.Message {
	out := *m
	if m.Media != nil {
		media := *m.Media
		out.Media = &media
	}
	return &out
}

func copyReceipt(r *domain.Receipt) *domain.Receipt {
	out := *r
	return &out
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyConversation(c), nil
}

func (s *MemoryStore) FindDirect(_ context.Context, pairKey string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pairs[pairKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyConversation(s.conversations[id]), nil
}

func (s *MemoryStore) InsertConversation(_ context.Context, c *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; ok {
		return fmt.Errorf("%w: conversation %s exists", domain.ErrConflict, c.ID)
	}
	if c.Type == domain.ConversationDirect {
		if _, ok := s.pairs[c.PairKey]; ok {
			return fmt.Errorf("%w: direct pair %s exists", domain.ErrConflict, c.PairKey)
		}
		s.pairs[c.PairKey] = c.ID
	}
	s.conversations[c.ID] = copyConversation(c)
	return nil
}

func (s *MemoryStore) ListConversationsForUser(_ context.Context, userID string) ([]*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Conversation{}
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, copyConversation(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) TouchLastMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return nil
	}
	if c.LastMessageAt != nil && !m.ServerTS.After(*c.LastMessageAt) {
		return nil
	}
	ts := m.ServerTS
	c.LastMessageAt = &ts
	c.LastMessagePreview = m.Preview()
	c.LastMessageID = m.ID
	c.LastMessageSenderID = m.SenderID
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyMessage(m), nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; ok {
		return fmt.Errorf("%w: message %s exists", domain.ErrConflict, m.ID)
	}
	stored := copyMessage(m)
	s.messages[m.ID] = stored
	s.byConv[m.ConversationID] = append(s.byConv[m.ConversationID], stored)
	return nil
}

// newest returns the conversation's messages sorted newest first.
func (s *MemoryStore) newest(conversationID string) []*domain.Message {
	msgs := append([]*domain.Message(nil), s.byConv[conversationID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].After(msgs[j]) })
	return msgs
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string, limit int, before *Cursor) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Message{}
	for _, m := range s.newest(conversationID) {
		if len(out) >= limit {
			break
		}
		if before != nil {
			olderTS := m.ServerTS.Before(before.ServerTS)
			sameTS := m.ServerTS.Equal(before.ServerTS) && m.ID < before.MessageID
			if !olderTS && !sameTS {
				continue
			}
		}
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *MemoryStore) LatestMessage(_ context.Context, conversationID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.newest(conversationID)
	if len(msgs) == 0 {
		return nil, domain.ErrNotFound
	}
	return copyMessage(msgs[0]), nil
}

func (s *MemoryStore) CountFromOthers(_ context.Context, conversationID, userID string, after *time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.byConv[conversationID] {
		if m.SenderID == userID {
			continue
		}
		if after != nil && !m.ServerTS.After(*after) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) GetReceipt(_ context.Context, conversationID, userID string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[pairOf(conversationID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyReceipt(r), nil
}

func (s *MemoryStore) ListReceipts(_ context.Context, conversationID string) ([]*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Receipt{}
	for _, r := range s.receipts {
		if r.ConversationID == conversationID {
			out = append(out, copyReceipt(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) AdvanceWatermark(_ context.Context, kind domain.ReceiptKind, conversationID, userID, expected, next string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairOf(conversationID, userID)
	now := time.Now().UTC()
	r, ok := s.receipts[key]
	if !ok {
		r = &domain.Receipt{ConversationID: conversationID, UserID: userID, CreatedAt: now}
	}
	if r.Watermark(kind) != expected {
		return false, nil
	}
	ts := at
	if kind == domain.ReceiptRead {
		r.LastReadMessageID = next
		r.LastReadAt = &ts
	} else {
		r.LastDeliveredMessageID = next
		r.LastDeliveredAt = &ts
	}
	r.UpdatedAt = now
	s.receipts[key] = r
	return true, nil
}

func (s *MemoryStore) IsBlocked(_ context.Context, blockerID, blockedID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[pairOf(blockerID, blockedID)], nil
}

func (s *MemoryStore) ListContacts(_ context.Context, ownerID string) ([]domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Contact(nil), s.contacts[ownerID]...), nil
}

func (s *MemoryStore) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListDeviceTokens(_ context.Context, userID string) ([]domain.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DeviceToken(nil), s.tokens[userID]...), nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*MongoStore)(nil)
)
