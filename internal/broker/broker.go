package broker

import (
	"context"
	"errors"
)

// ErrNotReady is returned when the connection did not come up within the
// publish readiness window.
var ErrNotReady = errors.New("broker not ready")

type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Handler receives inbound payloads. It runs on the transport's goroutine.
type Handler func(topic string, payload []byte)

type Broker interface {
	// Publish sends with QoS 1 and retain=false.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers h for topic; subscriptions survive reconnects.
	Subscribe(topic string, h Handler) error
	State() State
}
