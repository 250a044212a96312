package fanout

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/fathima-sithara/chat-core/internal/broker"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"go.uber.org/zap"
)

type batch struct {
	conversationID string
	pubs           []Publication
	done           chan struct{}
}

// Dispatcher publishes outbound events off the request path. Events for one
// conversation always land on the same shard, so per-topic order follows
// enqueue order.
type Dispatcher struct {
	b      broker.Broker
	log    *zap.Logger
	shards []chan batch
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(b broker.Broker, log *zap.Logger, shards, queueSize int) *Dispatcher {
	if shards <= 0 {
		shards = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		b:      b,
		log:    log.Named("fanout"),
		shards: make([]chan batch, shards),
	}
	for i := range d.shards {
		d.shards[i] = make(chan batch, queueSize)
	}
	d.wg.Add(shards)
	for i := range d.shards {
		go d.run(d.shards[i])
	}
	return d
}

func (d *Dispatcher) shard(conversationID string) chan batch {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

// Enqueue hands pubs to the conversation's shard without blocking. A full
// queue drops the batch; clients recover through history reads.
func (d *Dispatcher) Enqueue(conversationID string, pubs ...Publication) bool {
	if len(pubs) == 0 {
		return true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.shard(conversationID) <- batch{conversationID: conversationID, pubs: pubs}:
		return true
	default:
		for _, p := range pubs {
			metrics.Publishes.WithLabelValues(string(p.Family), "dropped").Inc()
		}
		d.log.Error("fanout queue full, dropping events",
			zap.String("conversation_id", conversationID),
			zap.Int("count", len(pubs)))
		return false
	}
}

// Flush waits until everything enqueued before the call has been published.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil
	}
	waits := make([]chan struct{}, 0, len(d.shards))
	for _, s := range d.shards {
		done := make(chan struct{})
		select {
		case s <- batch{done: done}:
			waits = append(waits, done)
		case <-ctx.Done():
			d.mu.RUnlock()
			return ctx.Err()
		}
	}
	d.mu.RUnlock()
	for _, w := range waits {
		select {
		case <-w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting events and drains the queues.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, s := range d.shards {
		close(s)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(queue <-chan batch) {
	defer d.wg.Done()
	for bt := range queue {
		for _, p := range bt.pubs {
			d.publish(bt.conversationID, p)
		}
		if bt.done != nil {
			close(bt.done)
		}
	}
}

func (d *Dispatcher) publish(conversationID string, p Publication) {
	err := d.b.Publish(context.Background(), p.Topic, p.Payload)
	switch {
	case err == nil:
		metrics.Publishes.WithLabelValues(string(p.Family), "ok").Inc()
		d.log.Debug("published", zap.String("topic", p.Topic))
	case errors.Is(err, broker.ErrNotReady):
		metrics.Publishes.WithLabelValues(string(p.Family), "not_ready").Inc()
		d.log.Error("publish lost, broker not ready",
			zap.String("topic", p.Topic),
			zap.String("conversation_id", conversationID))
	default:
		metrics.Publishes.WithLabelValues(string(p.Family), "error").Inc()
		d.log.Error("publish failed",
			zap.String("topic", p.Topic),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}
