package broker

import (
	"context"
	"sync"
)

type Published struct {
	Topic   string
	Payload []byte
}

// Memory is an in-process broker. Publishes are recorded and delivered
// synchronously to exact-topic subscribers.
type Memory struct {
	mu        sync.Mutex
	ready     bool
	published []Published
	subs      map[string][]Handler
}

func NewMemory() *Memory {
	return &Memory{ready: true, subs: make(map[string][]Handler)}
}

// SetReady toggles connectivity; while not ready Publish fails with ErrNotReady.
func (m *Memory) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *Memory) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return StateConnected
	}
	return StateReconnecting
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return ErrNotReady
	}
	m.published = append(m.published, Published{Topic: topic, Payload: append([]byte(nil), payload...)})
	handlers := append([]Handler(nil), m.subs[topic]...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (m *Memory) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[topic] = append(m.subs[topic], h)
	return nil
}

// Inject delivers an inbound payload as if a client had published it.
func (m *Memory) Inject(topic string, payload []byte) {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.subs[topic]...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(topic, payload)
	}
}

func (m *Memory) Published() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.published...)
}

// On returns the payloads published to topic, in order.
func (m *Memory) On(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

var (
	_ Broker = (*Memory)(nil)
	_ Broker = (*MQTT)(nil)
)
