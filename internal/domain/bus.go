package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require a namespace (the analyst ID) for isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, namespace string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, namespace string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Namespace string            `json:"namespace"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// GlobalNamespace receives a copy of every lifecycle event so a single
// recorder can persist runs for all analysts.
const GlobalNamespace = "_global"

// Simulation lifecycle topics.
const (
	TopicSimulationStarted   = "riskdesk.simulation.started"
	TopicSimulationSucceeded = "riskdesk.simulation.succeeded"
	TopicSimulationFailed    = "riskdesk.simulation.failed"
)

// SimulationEvent is the payload of a lifecycle message.
type SimulationEvent struct {
	Run SimulationRun `json:"run"`
}
