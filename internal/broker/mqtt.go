package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"go.uber.org/zap"
)

const qosAtLeastOnce byte = 1

type MQTTConfig struct {
	BrokerURL           string
	ClientID            string
	Username            string
	Password            string
	ConnectTimeout      time.Duration
	PublishReadyTimeout time.Duration
	ReconnectInterval   time.Duration
}

// MQTT wraps a paho client in a small state machine. ready is closed while the
// connection is up and replaced when it drops, so publishers can wait on it.
type MQTT struct {
	cfg    MQTTConfig
	log    *zap.Logger
	client mqtt.Client

	mu    sync.Mutex
	state State
	ready chan struct{}
	subs  map[string]Handler
}

func NewMQTT(cfg MQTTConfig, log *zap.Logger) *MQTT {
	b := &MQTT{
		cfg:   cfg,
		log:   log.Named("mqtt"),
		state: StateConnecting,
		ready: make(chan struct{}),
		subs:  make(map[string]Handler),
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ReconnectInterval).
		SetMaxReconnectInterval(cfg.ReconnectInterval).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			b.setState(StateReconnecting)
			b.log.Info("reconnecting")
		})
	b.client = mqtt.NewClient(opts)
	return b
}

// Connect starts the client and waits up to the connect timeout. On timeout the
// state is Failed, but the client keeps retrying in the background.
func (b *MQTT) Connect(ctx context.Context) error {
	b.log.Info("connecting", zap.String("url", b.cfg.BrokerURL))
	tok := b.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			b.setState(StateFailed)
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-time.After(b.cfg.ConnectTimeout):
		b.setState(StateFailed)
		return fmt.Errorf("mqtt connect: %w", ErrNotReady)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MQTT) Close() {
	b.client.Disconnect(250)
	metrics.BrokerConnected.Set(0)
}

func (b *MQTT) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *MQTT) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *MQTT) onConnect(c mqtt.Client) {
	b.mu.Lock()
	b.state = StateConnected
	// paho may report a connect without a loss in between
	select {
	case <-b.ready:
	default:
		close(b.ready)
	}
	subs := make(map[string]Handler, len(b.subs))
	for t, h := range b.subs {
		subs[t] = h
	}
	b.mu.Unlock()

	metrics.BrokerConnected.Set(1)
	b.log.Info("connected")
	for topic, h := range subs {
		if err := b.subscribe(topic, h); err != nil {
			b.log.Error("resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func (b *MQTT) onConnectionLost(_ mqtt.Client, err error) {
	b.mu.Lock()
	b.state = StateReconnecting
	b.ready = make(chan struct{})
	b.mu.Unlock()
	metrics.BrokerConnected.Set(0)
	b.log.Warn("connection lost", zap.Error(err))
}

func (b *MQTT) waitReady(ctx context.Context) error {
	b.mu.Lock()
	ready := b.ready
	b.mu.Unlock()

	timer := time.NewTimer(b.cfg.PublishReadyTimeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.waitReady(ctx); err != nil {
		return err
	}
	tok := b.client.Publish(topic, qosAtLeastOnce, false, payload)
	if !tok.WaitTimeout(b.cfg.PublishReadyTimeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrNotReady)
	}
	return tok.Error()
}

func (b *MQTT) Subscribe(topic string, h Handler) error {
	b.mu.Lock()
	b.subs[topic] = h
	connected := b.state == StateConnected
	b.mu.Unlock()
	if !connected {
		// picked up by onConnect
		return nil
	}
	return b.subscribe(topic, h)
}

func (b *MQTT) subscribe(topic string, h Handler) error {
	tok := b.client.Subscribe(topic, qosAtLeastOnce, func(_ mqtt.Client, m mqtt.Message) {
		h(m.Topic(), m.Payload())
	})
	if !tok.WaitTimeout(b.cfg.ConnectTimeout) {
		return errors.New("subscribe timed out")
	}
	if err := tok.Error(); err != nil {
		return err
	}
	b.log.Info("subscribed", zap.String("topic", topic))
	return nil
}
