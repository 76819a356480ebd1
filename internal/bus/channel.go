// Package bus provides event bus implementations for RiskDesk.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/riskdesk/internal/domain"
)

// ChannelBus implements EventBus using Go channels.
// Used as the Community tier event bus.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
}

type channelSubscription struct {
	id        string
	namespace string
	topic     string
	handler   domain.MessageHandler
	msgCh     chan *domain.Message
	ctx       context.Context
	cancel    context.CancelFunc
	bus       *ChannelBus

	// stop asks the consumer to drain msgCh and exit; done closes when it has.
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish sends a message to every subscriber of the namespaced topic.
// Delivery is non-blocking: a subscriber with a full buffer misses the message.
func (b *ChannelBus) Publish(ctx context.Context, namespace string, topic string, payload []byte) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		Namespace: namespace,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	injectTrace(ctx, msg)

	for _, sub := range b.subscriptions[b.makeKey(namespace, topic)] {
		select {
		case sub.msgCh <- msg:
		default:
			slog.Warn("subscriber buffer full, dropping message",
				"namespace", namespace,
				"topic", topic,
				"subscription_id", sub.id,
			)
		}
	}

	return nil
}

// Subscribe registers a handler for a topic.
func (b *ChannelBus) Subscribe(ctx context.Context, namespace string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)

	sub := &channelSubscription{
		id:        uuid.New().String(),
		namespace: namespace,
		topic:     topic,
		handler:   handler,
		msgCh:     make(chan *domain.Message, b.bufferSize),
		ctx:       subCtx,
		cancel:    cancel,
		bus:       b,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go b.handleMessages(sub)

	key := b.makeKey(namespace, topic)
	b.subscriptions[key] = append(b.subscriptions[key], sub)

	return sub, nil
}

// handleMessages processes messages for a subscription. A cancelled context
// stops it at once; Unsubscribe lets it finish the buffered messages first.
func (b *ChannelBus) handleMessages(sub *channelSubscription) {
	defer close(sub.done)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.stop:
			for {
				select {
				case msg := <-sub.msgCh:
					b.dispatch(sub, msg)
				default:
					return
				}
			}
		case msg := <-sub.msgCh:
			b.dispatch(sub, msg)
		}
	}
}

func (b *ChannelBus) dispatch(sub *channelSubscription, msg *domain.Message) {
	if err := sub.handler(extractTrace(sub.ctx, msg), msg); err != nil {
		slog.Error("handler error",
			"topic", msg.Topic,
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close closes the event bus and stops every subscription.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}

	b.subscriptions = make(map[string][]*channelSubscription)
	return nil
}

func (b *ChannelBus) remove(sub *channelSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := b.makeKey(sub.namespace, sub.topic)
	subs := b.subscriptions[key]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscriptions[key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscriptions[key]) == 0 {
		delete(b.subscriptions, key)
	}
}

func (b *ChannelBus) makeKey(namespace, topic string) string {
	return namespace + ":" + topic
}

// Unsubscribe stops receiving messages. Messages already buffered are
// handled before it returns.
func (s *channelSubscription) Unsubscribe() error {
	// Publish holds the read lock while sending, so nothing new lands in
	// msgCh once remove has returned.
	s.bus.remove(s)
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	s.cancel()
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
