package service

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/fanout"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"github.com/fathima-sithara/chat-core/internal/status"
	"github.com/fathima-sithara/chat-core/internal/utils"
	"go.uber.org/zap"
)

type Outcome int

const (
	// Accepted means the watermark moved forward and events were emitted.
	Accepted Outcome = iota
	// Ignored means the submission was a repeat or older than the stored watermark.
	Ignored
	// Dropped means a precondition failed.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Ignored:
		return "ignored"
	}
	return "dropped"
}

// A lost swap means another writer moved the watermark, so retries are bounded
// by how many writers race on one (conversation, user).
const casAttempts = 16

type ReceiptService struct {
	store repository.Store
	pub   Publisher
	locks *ConversationLocks
	log   *zap.Logger
}

func NewReceiptService(store repository.Store, pub Publisher, locks *ConversationLocks, log *zap.Logger) *ReceiptService {
	return &ReceiptService{store: store, pub: pub, locks: locks, log: log.Named("receipts")}
}

// SubmitDelivered records a delivered watermark from the broker path. Failures
// are logged and dropped; clients resend under at-least-once delivery.
func (s *ReceiptService) SubmitDelivered(ctx context.Context, conversationID, actorID, messageID string) Outcome {
	return s.submit(ctx, domain.ReceiptDelivered, conversationID, actorID, messageID)
}

// SubmitRead is SubmitDelivered for the read watermark.
func (s *ReceiptService) SubmitRead(ctx context.Context, conversationID, actorID, messageID string) Outcome {
	return s.submit(ctx, domain.ReceiptRead, conversationID, actorID, messageID)
}

func (s *ReceiptService) submit(ctx context.Context, kind domain.ReceiptKind, conversationID, actorID, messageID string) Outcome {
	out, err := s.apply(ctx, kind, conversationID, actorID, messageID)
	if err != nil {
		s.log.Warn("receipt dropped",
			zap.String("type", string(kind)),
			zap.String("conversation_id", conversationID),
			zap.String("user_id", actorID),
			zap.String("message_id", messageID),
			zap.Error(err))
	}
	return out
}

// MarkRead is the request path variant of SubmitRead: precondition failures
// are returned to the caller.
func (s *ReceiptService) MarkRead(ctx context.Context, conversationID, actorID, messageID string) (Outcome, error) {
	return s.apply(ctx, domain.ReceiptRead, conversationID, actorID, messageID)
}

func (s *ReceiptService) apply(ctx context.Context, kind domain.ReceiptKind, conversationID, actorID, messageID string) (out Outcome, err error) {
	defer func() {
		metrics.Receipts.WithLabelValues(string(kind), out.String()).Inc()
	}()

	if !kind.Valid() || conversationID == "" || actorID == "" || messageID == "" {
		return Dropped, wrap(domain.ErrInvalidArgument, "malformed watermark")
	}
	conv, err := loadMember(ctx, s.store, conversationID, actorID)
	if err != nil {
		return Dropped, err
	}
	target, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if isNotFound(err) {
			return Dropped, wrap(domain.ErrNotFound, "message %s", messageID)
		}
		return Dropped, err
	}
	if target.ConversationID != conversationID {
		return Dropped, wrap(domain.ErrInvalidArgument, "message %s belongs to another conversation", messageID)
	}

	// Held from the swap through Enqueue so receipt events leave in commit order.
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	var at time.Time
	swapped := false
	for attempt := 0; attempt < casAttempts && !swapped; attempt++ {
		current, err := s.store.GetReceipt(ctx, conversationID, actorID)
		if err != nil && !isNotFound(err) {
			return Dropped, err
		}
		prev := current.Watermark(kind)
		advance, err := s.advances(ctx, prev, target)
		if err != nil {
			return Dropped, err
		}
		if !advance {
			s.log.Debug("watermark not advanced",
				zap.String("type", string(kind)),
				zap.String("conversation_id", conversationID),
				zap.String("user_id", actorID),
				zap.String("message_id", messageID),
				zap.String("current", prev))
			return Ignored, nil
		}
		at = utils.NowUTC().Truncate(time.Millisecond)
		swapped, err = s.store.AdvanceWatermark(ctx, kind, conversationID, actorID, prev, messageID, at)
		if err != nil {
			return Dropped, err
		}
	}
	if !swapped {
		// lost every race; the winners carry a newer or equal watermark
		return Ignored, nil
	}

	s.emit(context.WithoutCancel(ctx), kind, conv, actorID, messageID, at)
	return Accepted, nil
}

// advances implements the monotone rule: an absent watermark always moves, the
// same id never does, two ULIDs compare lexically, anything else compares
// (server_ts, message_id). A watermark whose message vanished may be replaced.
func (s *ReceiptService) advances(ctx context.Context, prevID string, next *domain.Message) (bool, error) {
	switch {
	case prevID == "":
		return true, nil
	case prevID == next.ID:
		return false, nil
	case utils.IsULID(prevID) && utils.IsULID(next.ID):
		return next.ID > prevID, nil
	}
	prev, err := s.store.GetMessage(ctx, prevID)
	if isNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return next.After(prev), nil
}

// emit runs under the conversation lock.
func (s *ReceiptService) emit(ctx context.Context, kind domain.ReceiptKind, conv *domain.Conversation, actorID, messageID string, at time.Time) {
	ev := domain.ReceiptEvent{
		Type:           kind,
		ConversationID: conv.ID,
		ActorUserID:    actorID,
		TS:             utils.RFC3339(at),
	}
	if kind == domain.ReceiptRead {
		ev.LastReadMessageID = messageID
	} else {
		ev.LastDeliveredMessageID = messageID
	}

	var pubs []fanout.Publication
	for _, uid := range conv.Others(actorID) {
		pubs = append(pubs, fanout.ReceiptTo(uid, ev))
	}
	if kind == domain.ReceiptRead {
		ce := domain.ConversationEvent{
			ConversationID: conv.ID,
			Action:         domain.ConversationActionMessagesRead,
			ReadBy:         actorID,
			ReadAt:         utils.RFC3339(at),
		}
		if n, err := s.UnreadCount(ctx, conv.ID, actorID); err == nil {
			ce.UnreadCount = &n
		} else {
			s.log.Error("unread count after read", zap.String("conversation_id", conv.ID), zap.String("user_id", actorID), zap.Error(err))
		}
		pubs = append(pubs, fanout.ConversationTo(actorID, ce))
	}
	s.pub.Enqueue(conv.ID, pubs...)
}

// UnreadCount counts messages from others newer than userID's read watermark.
// With no watermark, or one whose message is gone, every message from others counts.
func (s *ReceiptService) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	r, err := s.store.GetReceipt(ctx, conversationID, userID)
	if err != nil && !isNotFound(err) {
		return 0, err
	}
	if id := r.Watermark(domain.ReceiptRead); id != "" {
		m, err := s.store.GetMessage(ctx, id)
		switch {
		case err == nil:
			return s.store.CountFromOthers(ctx, conversationID, userID, &m.ServerTS)
		case !errors.Is(err, domain.ErrNotFound):
			return 0, err
		}
	}
	return s.store.CountFromOthers(ctx, conversationID, userID, nil)
}

// Statuses derives the status of each message in msgs, all from conv. Receipts
// and watermark positions are loaded once for the call.
func (s *ReceiptService) Statuses(ctx context.Context, conv *domain.Conversation, msgs ...*domain.Message) (map[string]domain.StatusReport, error) {
	out := make(map[string]domain.StatusReport, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}
	receipts, err := s.store.ListReceipts(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	pos, err := positions(ctx, s.store, status.WatermarkIDs(receipts))
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ID] = status.Derive(status.Input{Message: m, Conversation: conv, Receipts: receipts, Positions: pos})
	}
	return out, nil
}
