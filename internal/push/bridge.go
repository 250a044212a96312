package push

import (
	"context"
	"sync"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"github.com/fathima-sithara/chat-core/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Namer resolves how a user is labelled for a given viewer.
type Namer interface {
	DisplayName(ctx context.Context, viewerID, userID string) string
}

type notice struct {
	msg        *domain.Message
	recipients []string
}

// Bridge turns new messages into push jobs on a small worker pool so message
// ingestion never waits on the gateway.
type Bridge struct {
	sink   Sink
	tokens repository.DeviceTokenStore
	names  Namer
	log    *zap.Logger
	queue  chan notice
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewBridge(sink Sink, tokens repository.DeviceTokenStore, names Namer, log *zap.Logger, workers, queueSize int) *Bridge {
	if workers <= 0 {
		workers = 1
	}
	b := &Bridge{
		sink:   sink,
		tokens: tokens,
		names:  names,
		log:    log.Named("push"),
		queue:  make(chan notice, queueSize),
	}
	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go b.worker()
	}
	return b
}

// Notify queues a push for every recipient. It never blocks; when the queue is
// full the notice is dropped.
func (b *Bridge) Notify(msg *domain.Message, recipients []string) {
	if len(recipients) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- notice{msg: msg, recipients: recipients}:
		metrics.PushJobs.WithLabelValues("enqueued").Inc()
	default:
		metrics.PushJobs.WithLabelValues("dropped").Inc()
		b.log.Error("push queue full, dropping",
			zap.String("message_id", msg.ID),
			zap.String("conversation_id", msg.ConversationID))
	}
}

func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for n := range b.queue {
		for _, rid := range n.recipients {
			b.deliver(n.msg, rid)
		}
	}
}

func (b *Bridge) deliver(msg *domain.Message, recipientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	devices, err := b.tokens.ListDeviceTokens(ctx, recipientID)
	if err != nil {
		metrics.PushJobs.WithLabelValues("failed").Inc()
		b.log.Error("load device tokens", zap.String("user_id", recipientID), zap.Error(err))
		return
	}
	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.FCMToken != "" {
			tokens = append(tokens, d.FCMToken)
		}
	}
	if len(tokens) == 0 {
		metrics.PushJobs.WithLabelValues("skipped").Inc()
		return
	}

	job := Job{
		ID:     uuid.NewString(),
		UserID: recipientID,
		Tokens: tokens,
		Title:  b.names.DisplayName(ctx, recipientID, msg.SenderID),
		Body:   msg.Preview(),
		Data: map[string]string{
			"conversation_id": msg.ConversationID,
			"message_id":      msg.ID,
			"type":            domain.EventTypeMessage,
		},
		CreatedAt: utils.RFC3339(utils.NowUTC()),
	}
	if err := b.sink.Send(ctx, job); err != nil {
		metrics.PushJobs.WithLabelValues("failed").Inc()
		b.log.Error("push send failed",
			zap.String("user_id", recipientID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return
	}
	metrics.PushJobs.WithLabelValues("sent").Inc()
}
