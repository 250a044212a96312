package service

import (
	"context"
	"errors"
	"sort"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/fanout"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"github.com/fathima-sithara/chat-core/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minGroupSize = 3

type MessageService struct {
	store    repository.Store
	pub      Publisher
	push     Notifier
	dir      Directory
	receipts *ReceiptService
	clock    utils.Clock
	locks    *ConversationLocks
	log      *zap.Logger
}

func NewMessageService(store repository.Store, pub Publisher, push Notifier, dir Directory, receipts *ReceiptService, clock utils.Clock, locks *ConversationLocks, log *zap.Logger) *MessageService {
	return &MessageService{
		store:    store,
		pub:      pub,
		push:     push,
		dir:      dir,
		receipts: receipts,
		clock:    clock,
		locks:    locks,
		log:      log.Named("messages"),
	}
}

// EnsureDirect returns the direct conversation between a and b, creating it on
// first use. Concurrent creators converge on the stored winner.
func (s *MessageService) EnsureDirect(ctx context.Context, a, b string) (*domain.Conversation, error) {
	if a == "" || b == "" {
		return nil, wrap(domain.ErrInvalidArgument, "participant missing")
	}
	if a == b {
		return nil, wrap(domain.ErrInvalidArgument, "cannot start a conversation with yourself")
	}
	ids, key := domain.CanonicalPair(a, b)
	conv, err := s.store.FindDirect(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	now := utils.NowUTC()
	conv = &domain.Conversation{
		ID:             uuid.NewString(),
		Type:           domain.ConversationDirect,
		ParticipantIDs: ids,
		PairKey:        key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.store.InsertConversation(ctx, conv)
	if errors.Is(err, domain.ErrConflict) {
		return s.store.FindDirect(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("direct conversation created", zap.String("conversation_id", conv.ID))
	return conv, nil
}

// CreateGroup creates a group of the creator plus members, de-duplicated.
func (s *MessageService) CreateGroup(ctx context.Context, creatorID string, memberIDs []string) (*domain.Conversation, error) {
	seen := map[string]bool{creatorID: true}
	participants := []string{creatorID}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		participants = append(participants, id)
	}
	if creatorID == "" || len(participants) < minGroupSize {
		return nil, wrap(domain.ErrInvalidArgument, "a group needs at least %d participants", minGroupSize)
	}
	sort.Strings(participants[1:])

	now := utils.NowUTC()
	conv := &domain.Conversation{
		ID:             uuid.NewString(),
		Type:           domain.ConversationGroup,
		ParticipantIDs: participants,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertConversation(ctx, conv); err != nil {
		return nil, err
	}

	ev := domain.ConversationEvent{ConversationID: conv.ID, Action: domain.ConversationActionUpdated}
	pubs := make([]fanout.Publication, 0, len(participants))
	for _, uid := range participants {
		pubs = append(pubs, fanout.ConversationTo(uid, ev))
	}
	s.pub.Enqueue(conv.ID, pubs...)
	s.log.Info("group created", zap.String("conversation_id", conv.ID), zap.Int("members", len(participants)))
	return conv, nil
}

// IngestMessage stores a client message. Repeating a clientMessageID returns
// the stored message with no side effects.
func (s *MessageService) IngestMessage(ctx context.Context, conversationID, senderID string, p domain.Payload, clientMessageID string) (*domain.Message, error) {
	if p.Type == domain.MessageSystem {
		return nil, wrap(domain.ErrInvalidArgument, "system messages are server authored")
	}
	return s.ingest(ctx, conversationID, senderID, p, clientMessageID)
}

// SendToUser sends into the direct conversation with recipientID, creating it when needed.
func (s *MessageService) SendToUser(ctx context.Context, senderID, recipientID string, p domain.Payload, clientMessageID string) (*domain.Message, error) {
	if senderID == recipientID {
		return nil, wrap(domain.ErrInvalidArgument, "cannot message yourself")
	}
	if _, err := s.dir.Profile(ctx, recipientID); err != nil {
		if isNotFound(err) {
			return nil, wrap(domain.ErrNotFound, "user %s", recipientID)
		}
		return nil, err
	}
	conv, err := s.EnsureDirect(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	return s.IngestMessage(ctx, conv.ID, senderID, p, clientMessageID)
}

// InjectSystemMessage posts server-authored text on behalf of authorID.
// messageID makes redelivered upstream events idempotent; empty mints one.
func (s *MessageService) InjectSystemMessage(ctx context.Context, conversationID, authorID, text, messageID string) (*domain.Message, error) {
	return s.ingest(ctx, conversationID, authorID, domain.Payload{Type: domain.MessageSystem, Text: text}, messageID)
}

func (s *MessageService) ingest(ctx context.Context, conversationID, senderID string, p domain.Payload, clientMessageID string) (*domain.Message, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if clientMessageID != "" && !utils.ValidClientID(clientMessageID) {
		return nil, wrap(domain.ErrInvalidArgument, "malformed message id")
	}

	if clientMessageID != "" {
		existing, err := s.store.GetMessage(ctx, clientMessageID)
		if err == nil {
			return s.duplicate(existing, conversationID, senderID)
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	conv, err := loadMember(ctx, s.store, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if conv.Type == domain.ConversationDirect {
		ok, err := s.dir.CanMessage(ctx, senderID, conv.Counterpart(senderID))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, wrap(domain.ErrForbidden, "messaging blocked")
		}
	}
	if p.ReplyToMessageID != "" {
		parent, err := s.store.GetMessage(ctx, p.ReplyToMessageID)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
		if parent == nil || parent.ConversationID != conversationID {
			return nil, wrap(domain.ErrInvalidArgument, "reply target %s not in conversation", p.ReplyToMessageID)
		}
	}

	id := clientMessageID
	if id == "" {
		id = utils.NewID()
	}

	unlock := s.locks.Lock(conversationID)
	ts := s.clock.Now()
	m := &domain.Message{
		ID:               id,
		ConversationID:   conversationID,
		SenderID:         senderID,
		ServerTS:         ts,
		Type:             p.Type,
		Text:             p.Text,
		Media:            p.Media,
		ReplyToMessageID: p.ReplyToMessageID,
		CreatedAt:        ts,
	}
	if err := s.store.InsertMessage(ctx, m); err != nil {
		unlock()
		if errors.Is(err, domain.ErrConflict) {
			existing, gerr := s.store.GetMessage(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			return s.duplicate(existing, conversationID, senderID)
		}
		return nil, err
	}

	// committed; the rest is best effort and must not be cut short by the caller
	bg := context.WithoutCancel(ctx)
	if err := s.store.TouchLastMessage(bg, m); err != nil {
		s.log.Error("update conversation cache", zap.String("conversation_id", conversationID), zap.String("message_id", id), zap.Error(err))
	}
	s.pub.Enqueue(conversationID, s.messagePublications(bg, conv, m)...)
	unlock()

	metrics.MessagesIngested.WithLabelValues(string(m.Type), "new").Inc()
	s.push.Notify(m, conv.Others(senderID))
	return m, nil
}

func (s *MessageService) duplicate(existing *domain.Message, conversationID, senderID string) (*domain.Message, error) {
	if existing.SenderID != senderID || existing.ConversationID != conversationID {
		return nil, wrap(domain.ErrInvalidArgument, "message id %s already used", existing.ID)
	}
	metrics.MessagesIngested.WithLabelValues(string(existing.Type), "duplicate").Inc()
	return existing, nil
}

// messagePublications orders a new message's events: the message to every
// participant including the sender, list updates to recipients, then the
// sender's own list update.
func (s *MessageService) messagePublications(ctx context.Context, conv *domain.Conversation, m *domain.Message) []fanout.Publication {
	msgEv := domain.MessageEvent{
		Type:           domain.EventTypeMessage,
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ServerTS:       utils.RFC3339(m.ServerTS),
		MessageType:    m.Type,
		Payload: domain.MessageEventPayload{
			Text:             m.Text,
			Media:            m.Media,
			ReplyToMessageID: m.ReplyToMessageID,
		},
	}
	row := domain.ConversationEvent{
		ConversationID:      m.ConversationID,
		Action:              domain.ConversationActionUpdated,
		LastMessageAt:       utils.RFC3339(m.ServerTS),
		LastMessagePreview:  m.Preview(),
		LastMessageSenderID: m.SenderID,
	}

	pubs := make([]fanout.Publication, 0, 2*len(conv.ParticipantIDs)+1)
	for _, uid := range conv.ParticipantIDs {
		pubs = append(pubs, fanout.MessageTo(uid, msgEv))
	}
	for _, uid := range conv.Others(m.SenderID) {
		ev := row
		if n, err := s.receipts.UnreadCount(ctx, conv.ID, uid); err == nil {
			ev.UnreadCount = &n
		} else {
			s.log.Error("unread count", zap.String("conversation_id", conv.ID), zap.String("user_id", uid), zap.Error(err))
		}
		pubs = append(pubs, fanout.ConversationTo(uid, ev))
	}

	own := row
	if st, err := s.receipts.Statuses(ctx, conv, m); err == nil {
		own.LastMessageStatus = st[m.ID].Status
	} else {
		own.LastMessageStatus = domain.StatusSent
		s.log.Error("derive status", zap.String("message_id", m.ID), zap.Error(err))
	}
	pubs = append(pubs, fanout.ConversationTo(m.SenderID, own))
	return pubs
}
