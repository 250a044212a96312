package service

import (
	"context"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

type ContactView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Username    string `json:"username,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type Relationship struct {
	IsContact   bool `json:"is_contact"`
	IBlocked    bool `json:"i_blocked_them"`
	TheyBlocked bool `json:"they_blocked_me"`
	CanMessage  bool `json:"can_message"`
}

type ConversationRow struct {
	ID                  string                  `json:"id"`
	Type                domain.ConversationType `json:"type"`
	ParticipantIDs      []string                `json:"participant_ids"`
	Contact             *ContactView            `json:"contact,omitempty"`
	LastMessageAt       *time.Time              `json:"last_message_at,omitempty"`
	LastMessagePreview  string                  `json:"last_message_preview,omitempty"`
	LastMessageID       string                  `json:"last_message_id,omitempty"`
	LastMessageSenderID string                  `json:"last_message_sender_id,omitempty"`
	LastMessageStatus   domain.Status           `json:"last_message_status,omitempty"`
	// group counts ride next to the status so the status key matches the push event
	LastMessageGroupStatus *domain.GroupStatus `json:"last_message_group_status,omitempty"`
	UnreadCount            *int64              `json:"unread_count,omitempty"`
	Relationship           *Relationship       `json:"relationship,omitempty"`
}

// MessageView is a message as returned to a reader. Status fields are
// flattened in only for the reader's own messages.
type MessageView struct {
	*domain.Message
	*domain.StatusReport
}

type Page struct {
	Messages   []MessageView `json:"messages"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
}

type EnsureResult struct {
	Conversation *domain.Conversation `json:"conversation"`
	Participants []ContactView        `json:"participants"`
	LastMessage  *MessageView         `json:"last_message,omitempty"`
}

type ReadResult struct {
	ConversationID    string `json:"conversation_id"`
	LastReadMessageID string `json:"last_read_message_id,omitempty"`
	Advanced          bool   `json:"advanced"`
	UnreadCount       int64  `json:"unread_count"`
}

type QueryService struct {
	store    repository.Store
	dir      Directory
	messages *MessageService
	receipts *ReceiptService
	log      *zap.Logger
}

func NewQueryService(store repository.Store, dir Directory, messages *MessageService, receipts *ReceiptService, log *zap.Logger) *QueryService {
	return &QueryService{store: store, dir: dir, messages: messages, receipts: receipts, log: log.Named("query")}
}

func (s *QueryService) contactView(ctx context.Context, userID string, contacts map[string]domain.Contact) ContactView {
	v := ContactView{ID: userID, ContactName: contacts[userID].ContactName}
	p, err := s.dir.Profile(ctx, userID)
	if err != nil && !isNotFound(err) {
		s.log.Warn("profile lookup", zap.String("user_id", userID), zap.Error(err))
	}
	if p != nil {
		v.FullName = p.FullName
		v.Username = p.Username
		v.AvatarURL = p.AvatarURL
	}
	v.Name = p.DisplayName(v.ContactName)
	return v
}

// ListConversations returns userID's conversations, most recent activity first.
func (s *QueryService) ListConversations(ctx context.Context, userID string) ([]ConversationRow, error) {
	convs, err := s.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	contacts, err := s.dir.Contacts(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows := make([]ConversationRow, 0, len(convs))
	for _, c := range convs {
		row := ConversationRow{
			ID:                  c.ID,
			Type:                c.Type,
			ParticipantIDs:      c.ParticipantIDs,
			LastMessageAt:       c.LastMessageAt,
			LastMessagePreview:  c.LastMessagePreview,
			LastMessageID:       c.LastMessageID,
			LastMessageSenderID: c.LastMessageSenderID,
		}

		if peer := c.Counterpart(userID); peer != "" {
			cv := s.contactView(ctx, peer, contacts)
			row.Contact = &cv
			if _, isContact := contacts[peer]; !isContact {
				bs, err := s.dir.BlockStatus(ctx, userID, peer)
				if err != nil {
					return nil, err
				}
				row.Relationship = &Relationship{
					IBlocked:    bs.IBlocked,
					TheyBlocked: bs.TheyBlocked,
					CanMessage:  bs.CanMessage(),
				}
			}
		}

		switch {
		case c.LastMessageID == "":
		case c.LastMessageSenderID == userID:
			last, err := s.store.GetMessage(ctx, c.LastMessageID)
			if isNotFound(err) {
				break
			}
			if err != nil {
				return nil, err
			}
			st, err := s.receipts.Statuses(ctx, c, last)
			if err != nil {
				return nil, err
			}
			report := st[last.ID]
			row.LastMessageStatus = report.Status
			row.LastMessageGroupStatus = report.GroupStatus
		default:
			n, err := s.receipts.UnreadCount(ctx, c.ID, userID)
			if err != nil {
				return nil, err
			}
			row.UnreadCount = &n
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadMessages pages through history newest first. Opening the latest page
// marks it read; paging older history never moves a watermark.
func (s *QueryService) ReadMessages(ctx context.Context, conversationID, userID string, limit int, beforeMessageID string) (*Page, error) {
	conv, err := loadMember(ctx, s.store, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var cursor *repository.Cursor
	if beforeMessageID != "" {
		before, err := s.store.GetMessage(ctx, beforeMessageID)
		if err != nil {
			if isNotFound(err) {
				return nil, wrap(domain.ErrNotFound, "message %s", beforeMessageID)
			}
			return nil, err
		}
		if before.ConversationID != conversationID {
			return nil, wrap(domain.ErrInvalidArgument, "cursor %s not in conversation", beforeMessageID)
		}
		cursor = &repository.Cursor{ServerTS: before.ServerTS, MessageID: before.ID}
	}

	msgs, err := s.store.ListMessages(ctx, conversationID, limit+1, cursor)
	if err != nil {
		return nil, err
	}
	page := &Page{}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		page.HasMore = true
		page.NextCursor = msgs[len(msgs)-1].ID
	}

	views, err := s.views(ctx, conv, userID, msgs)
	if err != nil {
		return nil, err
	}
	page.Messages = views

	if cursor == nil && len(msgs) > 0 {
		s.markOpenedAsRead(ctx, conversationID, userID, msgs[0].ID)
	}
	return page, nil
}

func (s *QueryService) views(ctx context.Context, conv *domain.Conversation, userID string, msgs []*domain.Message) ([]MessageView, error) {
	var own []*domain.Message
	for _, m := range msgs {
		if m.SenderID == userID {
			own = append(own, m)
		}
	}
	statuses, err := s.receipts.Statuses(ctx, conv, own...)
	if err != nil {
		return nil, err
	}
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{Message: m}
		if st, ok := statuses[m.ID]; ok {
			v.StatusReport = &st
		}
		out = append(out, v)
	}
	return out, nil
}

// EnsureConversation opens (or creates) the direct conversation between caller
// and recipient and returns it with both participants and the latest message.
func (s *QueryService) EnsureConversation(ctx context.Context, callerID, recipientID string) (*EnsureResult, error) {
	if recipientID == "" || recipientID == callerID {
		return nil, wrap(domain.ErrInvalidArgument, "recipient must be another user")
	}
	if _, err := s.dir.Profile(ctx, recipientID); err != nil {
		if isNotFound(err) {
			return nil, wrap(domain.ErrNotFound, "user %s", recipientID)
		}
		return nil, err
	}
	conv, err := s.messages.EnsureDirect(ctx, callerID, recipientID)
	if err != nil {
		return nil, err
	}
	contacts, err := s.dir.Contacts(ctx, callerID)
	if err != nil {
		return nil, err
	}

	res := &EnsureResult{Conversation: conv}
	for _, uid := range conv.ParticipantIDs {
		res.Participants = append(res.Participants, s.contactView(ctx, uid, contacts))
	}

	last, err := s.store.LatestMessage(ctx, conv.ID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if last != nil {
		views, err := s.views(ctx, conv, callerID, []*domain.Message{last})
		if err != nil {
			return nil, err
		}
		res.LastMessage = &views[0]
		if last.SenderID != callerID {
			s.markOpenedAsRead(ctx, conv.ID, callerID, last.ID)
		}
	}
	return res, nil
}

// MarkAsRead advances userID's read watermark to messageID, or to the newest
// message when messageID is empty.
func (s *QueryService) MarkAsRead(ctx context.Context, conversationID, userID, messageID string) (*ReadResult, error) {
	if _, err := loadMember(ctx, s.store, conversationID, userID); err != nil {
		return nil, err
	}
	if messageID == "" {
		latest, err := s.store.LatestMessage(ctx, conversationID)
		if isNotFound(err) {
			return &ReadResult{ConversationID: conversationID}, nil
		}
		if err != nil {
			return nil, err
		}
		messageID = latest.ID
	}

	out, err := s.receipts.MarkRead(ctx, conversationID, userID, messageID)
	if err != nil {
		return nil, err
	}
	res := &ReadResult{ConversationID: conversationID, Advanced: out == Accepted}
	if r, err := s.store.GetReceipt(ctx, conversationID, userID); err == nil {
		res.LastReadMessageID = r.LastReadMessageID
	}
	if res.UnreadCount, err = s.receipts.UnreadCount(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return res, nil
}

// markOpenedAsRead is the implicit read receipt for opening a conversation.
// It behaves exactly like an explicit MarkAsRead but never fails the read.
func (s *QueryService) markOpenedAsRead(ctx context.Context, conversationID, userID, messageID string) {
	if _, err := s.receipts.MarkRead(ctx, conversationID, userID, messageID); err != nil {
		s.log.Warn("auto mark as read",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}
