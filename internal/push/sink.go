package push

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Job is one notification request for the external push gateway. The gateway
// owns provider credentials and delivery; the core only describes what to send.
type Job struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Tokens    []string          `json:"tokens"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
	CreatedAt string            `json:"created_at"`
}

type Sink interface {
	Send(ctx context.Context, job Job) error
}

type KafkaSink struct {
	writer *kafkago.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Send(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(job.UserID),
		Value: b,
		Time:  time.Now(),
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// BreakerSink stops hammering the gateway after consecutive failures.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSink(next Sink, cfg BreakerConfig, logger *zap.Logger) *BreakerSink {
	st := gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &BreakerSink{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (s *BreakerSink) Send(ctx context.Context, job Job) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Send(ctx, job)
	})
	return err
}
