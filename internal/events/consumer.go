package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Messages interface {
	EnsureDirect(ctx context.Context, a, b string) (*domain.Conversation, error)
	InjectSystemMessage(ctx context.Context, conversationID, authorID, text, messageID string) (*domain.Message, error)
}

// Consumer turns PrivateCommentCreated events from the posts service into
// system messages in the owner/commenter direct conversation.
type Consumer struct {
	reader   *kafka.Reader
	messages Messages
	topic    string
	log      *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, messages Messages, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Consumer{reader: r, messages: messages, topic: topic, log: log.Named("events")}
}

// Run reads until ctx is cancelled. Transient failures are retried with
// backoff before the offset moves on, so per-partition order is kept and a
// shutdown mid-retry leaves the event uncommitted for redelivery.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("kafka fetch", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		err = c.handleWithRetry(ctx, m)
		switch {
		case err == nil:
			metrics.DomainEvents.WithLabelValues(c.topic, "ok").Inc()
		case ctx.Err() != nil:
			return
		default:
			metrics.DomainEvents.WithLabelValues(c.topic, "rejected").Inc()
			c.log.Warn("private comment rejected", zap.Error(err), zap.Int64("offset", m.Offset))
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Error("kafka commit", zap.Error(err))
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, m kafka.Message) error {
	op := func() error {
		err := c.Handle(ctx, m.Value)
		if err != nil && !errors.Is(err, domain.ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		metrics.DomainEvents.WithLabelValues(c.topic, "retry").Inc()
		c.log.Warn("private comment retry",
			zap.Error(err),
			zap.Int64("offset", m.Offset),
			zap.Duration("next", next))
	})
}

func (c *Consumer) Handle(ctx context.Context, raw []byte) error {
	var ev domain.PrivateCommentCreated
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("decode private comment: %v: %w", err, domain.ErrInvalidArgument)
	}
	if ev.CommentID == "" || ev.PostID == "" || ev.PostOwnerID == "" || ev.CommenterID == "" {
		return fmt.Errorf("private comment missing ids: %w", domain.ErrInvalidArgument)
	}
	// commenting on your own post has no one to notify
	if ev.PostOwnerID == ev.CommenterID {
		return nil
	}

	conv, err := c.messages.EnsureDirect(ctx, ev.PostOwnerID, ev.CommenterID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Comment on post %s: %s", ev.PostID, ev.CommentText)
	m, err := c.messages.InjectSystemMessage(ctx, conv.ID, ev.CommenterID, text, ev.CommentID)
	if err != nil {
		return err
	}
	c.log.Info("private comment delivered",
		zap.String("conversation_id", conv.ID),
		zap.String("message_id", m.ID),
		zap.String("post_id", ev.PostID))
	return nil
}

func (c *Consumer) Close() error { return c.reader.Close() }
