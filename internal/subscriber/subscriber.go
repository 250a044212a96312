package subscriber

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fathima-sithara/chat-core/internal/broker"
	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/fathima-sithara/chat-core/internal/service"
	"github.com/fathima-sithara/chat-core/internal/utils"
	"go.uber.org/zap"
)

type Receipts interface {
	SubmitDelivered(ctx context.Context, conversationID, actorID, messageID string) service.Outcome
	SubmitRead(ctx context.Context, conversationID, actorID, messageID string) service.Outcome
}

// Subscriber consumes the receipts ingress topic. It never fails: bad input is
// logged and dropped and the client's retransmission is the recovery path.
type Subscriber struct {
	b        broker.Broker
	receipts Receipts
	topic    string
	limiter  *ActorLimiter
	log      *zap.Logger
}

func New(b broker.Broker, receipts Receipts, topic string, limiter *ActorLimiter, log *zap.Logger) *Subscriber {
	if topic == "" {
		topic = broker.ReceiptsIngress
	}
	return &Subscriber{b: b, receipts: receipts, topic: topic, limiter: limiter, log: log.Named("ingress")}
}

// Start registers the subscription. The broker re-establishes it after reconnects.
func (s *Subscriber) Start() error {
	return s.b.Subscribe(s.topic, s.handle)
}

func (s *Subscriber) drop(reason string, fields ...zap.Field) {
	metrics.IngressEvents.WithLabelValues(reason).Inc()
	s.log.Warn("ingress event dropped", append(fields, zap.String("reason", reason))...)
}

func (s *Subscriber) handle(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("ingress handler panic", zap.Any("panic", r), zap.String("topic", topic))
		}
	}()

	var ev domain.ReceiptIngress
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.drop("malformed", zap.Error(err))
		return
	}
	messageID, ok := validate(ev)
	if !ok {
		s.drop("malformed",
			zap.String("type", string(ev.Type)),
			zap.String("conversation_id", ev.ConversationID),
			zap.String("user_id", ev.ActorUserID))
		return
	}
	if s.limiter != nil && !s.limiter.Allow(ev.ActorUserID) {
		s.drop("throttled", zap.String("user_id", ev.ActorUserID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	metrics.IngressEvents.WithLabelValues("dispatched").Inc()
	if ev.Type == domain.ReceiptRead {
		s.receipts.SubmitRead(ctx, ev.ConversationID, ev.ActorUserID, messageID)
	} else {
		s.receipts.SubmitDelivered(ctx, ev.ConversationID, ev.ActorUserID, messageID)
	}
}

// validate checks shape only; membership and ordering belong to the receipt engine.
func validate(ev domain.ReceiptIngress) (string, bool) {
	if !ev.Type.Valid() || ev.ConversationID == "" || ev.ActorUserID == "" {
		return "", false
	}
	if ev.TS != "" {
		if _, err := utils.ParseRFC3339(ev.TS); err != nil {
			return "", false
		}
	}
	id := ev.LastDeliveredMessageID
	if ev.Type == domain.ReceiptRead {
		id = ev.LastReadMessageID
	}
	if !utils.ValidClientID(id) {
		return "", false
	}
	return id, true
}
