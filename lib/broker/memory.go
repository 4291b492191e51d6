// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/nexus/lib/clock"
)

// Memory defaults.
const (
	DefaultQueueCapacity = 1024
	DefaultMaxAttempts   = 3
)

// HeaderDeadLetterReason carries the last negative-acknowledgment
// reason on a dead-lettered message.
const HeaderDeadLetterReason = "x-dead-letter-reason"

// MemoryConfig configures a Memory broker.
type MemoryConfig struct {
	// QueueCapacity bounds each queue's backlog. Publish into a full
	// queue fails with ErrQueueFull. Zero means DefaultQueueCapacity.
	QueueCapacity int

	// MaxAttempts is the per-message delivery limit for queues that
	// do not set their own. Zero means DefaultMaxAttempts.
	MaxAttempts int

	Clock  clock.Clock
	Logger *slog.Logger
}

type binding struct {
	queue string
	key   string
}

func (b binding) matches(routingKey string) bool {
	return b.key == "" || b.key == "#" || b.key == routingKey
}

type queue struct {
	name     string
	options  QueueOptions
	messages chan Delivery
}

type subscription struct {
	id     string
	queue  string
	cancel context.CancelFunc
	done   chan struct{}
}

type pendingDelivery struct {
	delivery     Delivery
	subscription string
}

// Memory is an in-process Broker. Each subscription runs its handler
// on its own goroutine.
type Memory struct {
	mu            sync.RWMutex
	capacity      int
	maxAttempts   int
	clock         clock.Clock
	logger        *slog.Logger
	base          context.Context
	cancelAll     context.CancelFunc
	closed        bool
	topics        map[string][]binding
	queues        map[string]*queue
	subscriptions map[string]*subscription
	pending       map[string]pendingDelivery
}

// NewMemory returns an empty in-memory broker.
func NewMemory(config MemoryConfig) *Memory {
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultQueueCapacity
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	base, cancel := context.WithCancel(context.Background())
	return &Memory{
		capacity:      config.QueueCapacity,
		maxAttempts:   config.MaxAttempts,
		clock:         config.Clock,
		logger:        config.Logger,
		base:          base,
		cancelAll:     cancel,
		topics:        make(map[string][]binding),
		queues:        make(map[string]*queue),
		subscriptions: make(map[string]*subscription),
		pending:       make(map[string]pendingDelivery),
	}
}

func (m *Memory) CreateTopic(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, exists := m.topics[name]; !exists {
		m.topics[name] = nil
		m.logger.Debug("topic created", "topic", name)
	}
	return nil
}

func (m *Memory) CreateQueue(_ context.Context, name string, options QueueOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, exists := m.queues[name]; !exists {
		m.queues[name] = &queue{name: name, options: options, messages: make(chan Delivery, m.capacity)}
		m.logger.Debug("queue created", "queue", name, "dead_letter_queue", options.DeadLetterQueue)
	}
	return nil
}

func (m *Memory) BindQueue(_ context.Context, queueName, topic, bindingKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	bindings, exists := m.topics[topic]
	if !exists {
		return fmt.Errorf("%w: %q", ErrTopicNotFound, topic)
	}
	if _, exists := m.queues[queueName]; !exists {
		return fmt.Errorf("%w: %q", ErrQueueNotFound, queueName)
	}
	added := binding{queue: queueName, key: bindingKey}
	for _, existing := range bindings {
		if existing == added {
			return nil
		}
	}
	m.topics[topic] = append(bindings, added)
	m.logger.Debug("queue bound", "queue", queueName, "topic", topic, "binding_key", bindingKey)
	return nil
}

// Publish enqueues one copy per matching binding. Copies that do not
// fit are reported as ErrQueueFull after the others are enqueued.
func (m *Memory) Publish(_ context.Context, topic, routingKey string, body []byte, headers map[string]string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", ErrClosed
	}
	bindings, exists := m.topics[topic]
	if !exists {
		return "", fmt.Errorf("%w: %q", ErrTopicNotFound, topic)
	}

	messageID := uuid.NewString()
	publishedAt := m.clock.Now()
	var failures []error
	routed := 0
	for _, target := range bindings {
		if !target.matches(routingKey) {
			continue
		}
		delivery := Delivery{
			MessageID:   messageID,
			Topic:       topic,
			RoutingKey:  routingKey,
			Queue:       target.queue,
			Body:        body,
			Headers:     maps.Clone(headers),
			PublishedAt: publishedAt,
		}
		if !m.enqueueLocked(delivery) {
			failures = append(failures, fmt.Errorf("%w: %q", ErrQueueFull, target.queue))
			continue
		}
		routed++
	}
	if routed == 0 && len(failures) == 0 {
		m.logger.Debug("message unroutable, dropped", "topic", topic, "routing_key", routingKey, "message_id", messageID)
	}
	return messageID, errors.Join(failures...)
}

// enqueueLocked adds delivery to its queue without blocking. Caller
// holds mu in either mode.
func (m *Memory) enqueueLocked(delivery Delivery) bool {
	target, exists := m.queues[delivery.Queue]
	if !exists {
		return false
	}
	select {
	case target.messages <- delivery:
		return true
	default:
		return false
	}
}

func (m *Memory) Subscribe(_ context.Context, queueName string, handler Handler) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	source, exists := m.queues[queueName]
	if !exists {
		return "", fmt.Errorf("%w: %q", ErrQueueNotFound, queueName)
	}
	ctx, cancel := context.WithCancel(m.base)
	consumer := &subscription{
		id:     uuid.NewString(),
		queue:  queueName,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.subscriptions[consumer.id] = consumer
	go m.consume(ctx, consumer, source, handler)
	m.logger.Debug("subscribed", "queue", queueName, "subscription_id", consumer.id)
	return consumer.id, nil
}

func (m *Memory) consume(ctx context.Context, consumer *subscription, source *queue, handler Handler) {
	defer close(consumer.done)
	for {
		select {
		case <-ctx.Done():
			return
		case delivery := <-source.messages:
			delivery.ID = uuid.NewString()
			delivery.Attempt++
			m.mu.Lock()
			m.pending[delivery.ID] = pendingDelivery{delivery: delivery, subscription: consumer.id}
			m.mu.Unlock()
			handler(ctx, delivery)
		}
	}
}

func (m *Memory) Acknowledge(_ context.Context, deliveryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pending[deliveryID]; !exists {
		return fmt.Errorf("%w: %q", ErrDeliveryNotFound, deliveryID)
	}
	delete(m.pending, deliveryID)
	return nil
}

// NegativeAcknowledge requeues the message, or dead-letters it once
// it has used the queue's attempts.
func (m *Memory) NegativeAcknowledge(_ context.Context, deliveryID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, exists := m.pending[deliveryID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrDeliveryNotFound, deliveryID)
	}
	delete(m.pending, deliveryID)

	delivery := entry.delivery
	source := m.queues[delivery.Queue]
	limit := m.maxAttempts
	if source != nil && source.options.MaxAttempts > 0 {
		limit = source.options.MaxAttempts
	}
	if delivery.Attempt < limit {
		if m.enqueueLocked(delivery) {
			return nil
		}
		m.logger.Warn("requeue failed, queue full", "queue", delivery.Queue, "message_id", delivery.MessageID)
	}
	m.deadLetterLocked(delivery, source, reason)
	return nil
}

// deadLetterLocked moves delivery to its queue's dead-letter queue or
// drops it. Caller holds mu.
func (m *Memory) deadLetterLocked(delivery Delivery, source *queue, reason string) {
	attributes := []any{
		"queue", delivery.Queue,
		"message_id", delivery.MessageID,
		"attempts", delivery.Attempt,
		"reason", reason,
	}
	if source == nil || source.options.DeadLetterQueue == "" {
		m.logger.Warn("message dropped after failed delivery", attributes...)
		return
	}
	delivery.Queue = source.options.DeadLetterQueue
	delivery.Attempt = 0
	if delivery.Headers == nil {
		delivery.Headers = map[string]string{}
	}
	delivery.Headers[HeaderDeadLetterReason] = reason
	if !m.enqueueLocked(delivery) {
		m.logger.Error("dead-letter queue unavailable, message dropped", attributes...)
		return
	}
	m.logger.Info("message dead-lettered", append(attributes, "dead_letter_queue", delivery.Queue)...)
}

// Unsubscribe stops the subscription, waits for its handler to
// return, and requeues deliveries it left unacknowledged. It must not
// be called from that subscription's handler.
func (m *Memory) Unsubscribe(_ context.Context, subscriptionID string) error {
	m.mu.Lock()
	consumer, exists := m.subscriptions[subscriptionID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSubscriptionNotFound, subscriptionID)
	}
	delete(m.subscriptions, subscriptionID)
	m.mu.Unlock()

	consumer.cancel()
	<-consumer.done

	m.mu.Lock()
	defer m.mu.Unlock()
	for deliveryID, entry := range m.pending {
		if entry.subscription != subscriptionID {
			continue
		}
		delete(m.pending, deliveryID)
		if !m.enqueueLocked(entry.delivery) {
			m.deadLetterLocked(entry.delivery, m.queues[entry.delivery.Queue], "unsubscribed with delivery outstanding")
		}
	}
	m.logger.Debug("unsubscribed", "queue", consumer.queue, "subscription_id", subscriptionID)
	return nil
}

func (m *Memory) HealthCheck(_ context.Context) Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	health := Health{
		Healthy:       !m.closed,
		Topics:        len(m.topics),
		Queues:        len(m.queues),
		Subscriptions: len(m.subscriptions),
		Pending:       len(m.pending),
	}
	for _, source := range m.queues {
		health.Pending += len(source.messages)
	}
	if m.closed {
		health.Detail = "closed"
	}
	return health
}

// Close stops every subscription and waits for running handlers.
// Later calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	consumers := make([]*subscription, 0, len(m.subscriptions))
	for _, consumer := range m.subscriptions {
		consumers = append(consumers, consumer)
	}
	clear(m.subscriptions)
	m.mu.Unlock()

	m.cancelAll()
	for _, consumer := range consumers {
		<-consumer.done
	}
	m.logger.Debug("broker closed")
	return nil
}

var _ Broker = (*Memory)(nil)
