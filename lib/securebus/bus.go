// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package securebus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/nexus/lib/accesscontrol"
	"github.com/bureau-foundation/nexus/lib/authentication"
	"github.com/bureau-foundation/nexus/lib/broker"
	"github.com/bureau-foundation/nexus/lib/clock"
	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/msgrule"
)

// Standard topics.
const (
	TopicAgents   = "nexus.agents"
	TopicCommands = "nexus.commands"
	TopicEvents   = "nexus.events"
	TopicTools    = "nexus.tools"
)

// Topics lists the standard topics New creates.
var Topics = []string{TopicAgents, TopicCommands, TopicEvents, TopicTools}

// DeadLetterQueue receives agent messages that exhaust their delivery
// attempts.
const DeadLetterQueue = "nexus.dead_letter"

// Headers set on every published message.
const (
	HeaderSenderID    = "sender_id"
	HeaderRecipientID = "recipient_id"
	HeaderMessageID   = "message_id"
)

var (
	ErrAgentRegistered    = errors.New("securebus: agent already registered")
	ErrAgentNotRegistered = errors.New("securebus: agent not registered")
)

// QueueName returns the queue an agent consumes from.
func QueueName(agentID string) string {
	return "agent_" + agentID
}

// Config configures a Bus. Only Broker is required.
type Config struct {
	Broker broker.Broker

	// Authentication signs outbound messages and verifies inbound
	// ones. Nil disables both.
	Authentication *authentication.Processor

	// Rules validates inbound messages. Nil disables.
	Rules *msgrule.Middleware

	// AccessControl enriches outbound messages and authorizes inbound
	// ones. Nil disables both.
	AccessControl *accesscontrol.Middleware

	Clock  clock.Clock
	Logger *slog.Logger
}

// Bus is a secure message bus. Safe for concurrent use.
type Bus struct {
	broker         broker.Broker
	authentication *authentication.Processor
	rules          *msgrule.Middleware
	accessControl  *accesscontrol.Middleware
	clock          clock.Clock
	logger         *slog.Logger

	mu     sync.Mutex
	agents map[string]string // agent id → subscription id
}

// New creates the standard topics and the dead-letter queue and
// returns a Bus over config.Broker.
func New(ctx context.Context, config Config) (*Bus, error) {
	if config.Broker == nil {
		return nil, errors.New("securebus: broker is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	for _, topic := range Topics {
		if err := config.Broker.CreateTopic(ctx, topic); err != nil {
			return nil, fmt.Errorf("securebus: creating topic %s: %w", topic, err)
		}
	}
	if err := config.Broker.CreateQueue(ctx, DeadLetterQueue, broker.QueueOptions{}); err != nil {
		return nil, fmt.Errorf("securebus: creating dead-letter queue: %w", err)
	}
	return &Bus{
		broker:         config.Broker,
		authentication: config.Authentication,
		rules:          config.Rules,
		accessControl:  config.AccessControl,
		clock:          config.Clock,
		logger:         config.Logger,
		agents:         make(map[string]string),
	}, nil
}

// middlewares returns the inbound layers, outermost first.
func (b *Bus) middlewares() []message.Middleware {
	var layers []message.Middleware
	if b.authentication != nil {
		// Send signs responses after enrichment.
		layers = append(layers, b.authentication.Inbound)
	}
	if b.rules != nil {
		layers = append(layers, b.rules.Wrap)
	}
	if b.accessControl != nil {
		layers = append(layers, b.accessControl.Wrap)
	}
	return layers
}

// RegisterAgent creates the agent's queue, binds it to the agents
// topic under the agent's id, and starts delivering to handler wrapped
// in the security layers.
func (b *Bus) RegisterAgent(ctx context.Context, agentID string, handler message.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.agents[agentID]; exists {
		return fmt.Errorf("%w: %s", ErrAgentRegistered, agentID)
	}

	queue := QueueName(agentID)
	if err := b.broker.CreateQueue(ctx, queue, broker.QueueOptions{DeadLetterQueue: DeadLetterQueue}); err != nil {
		return fmt.Errorf("securebus: creating queue for %s: %w", agentID, err)
	}
	if err := b.broker.BindQueue(ctx, queue, TopicAgents, agentID); err != nil {
		return fmt.Errorf("securebus: binding queue for %s: %w", agentID, err)
	}
	wrapped := message.Chain(handler, b.middlewares()...)
	subscriptionID, err := b.broker.Subscribe(ctx, queue, b.deliver(agentID, wrapped))
	if err != nil {
		return fmt.Errorf("securebus: subscribing %s: %w", agentID, err)
	}
	b.agents[agentID] = subscriptionID
	b.logger.Info("agent registered", "agent_id", agentID, "queue", queue)
	return nil
}

// UnregisterAgent stops delivery to the agent. Its queue and any
// backlog remain.
func (b *Bus) UnregisterAgent(ctx context.Context, agentID string) error {
	b.mu.Lock()
	subscriptionID, exists := b.agents[agentID]
	delete(b.agents, agentID)
	b.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrAgentNotRegistered, agentID)
	}
	if err := b.broker.Unsubscribe(ctx, subscriptionID); err != nil {
		return fmt.Errorf("securebus: unsubscribing %s: %w", agentID, err)
	}
	b.logger.Info("agent unregistered", "agent_id", agentID)
	return nil
}

// Agents returns the registered agent ids, sorted.
func (b *Bus) Agents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	agents := make([]string, 0, len(b.agents))
	for agentID := range b.agents {
		agents = append(agents, agentID)
	}
	sort.Strings(agents)
	return agents
}

// deliver adapts a wrapped handler to broker deliveries.
func (b *Bus) deliver(agentID string, handler message.Handler) broker.Handler {
	return func(ctx context.Context, delivery broker.Delivery) {
		logger := b.logger.With("agent_id", agentID, "delivery_id", delivery.ID, "attempt", delivery.Attempt)
		msg, err := message.Decode(delivery.Body)
		if err != nil {
			logger.Error("undecodable delivery", "error", err)
			b.reject(ctx, logger, delivery, err.Error())
			return
		}
		response, err := handler(ctx, msg)
		if err != nil {
			logger.Error("handler failed", "message_id", msg.MessageID, "error", err)
			b.reject(ctx, logger, delivery, err.Error())
			return
		}
		if err := b.broker.Acknowledge(ctx, delivery.ID); err != nil {
			logger.Warn("acknowledge failed", "error", err)
		}
		if response == nil {
			return
		}
		if _, err := b.Send(ctx, response); err != nil {
			logger.Error("sending response failed", "message_id", response.MessageID, "error", err)
		}
	}
}

func (b *Bus) reject(ctx context.Context, logger *slog.Logger, delivery broker.Delivery, reason string) {
	if err := b.broker.NegativeAcknowledge(ctx, delivery.ID, reason); err != nil {
		logger.Warn("negative acknowledge failed", "error", err)
	}
}

// Send enriches, authenticates, and publishes msg to its recipient.
// A missing id or timestamp is filled in. It returns the broker's
// message id.
func (b *Bus) Send(ctx context.Context, msg *message.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	prepared := msg.Clone()
	if prepared.MessageID == "" {
		prepared.MessageID = uuid.NewString()
	}
	if prepared.Timestamp.IsZero() {
		prepared.Timestamp = b.clock.Now()
	}
	if prepared.ContentType == "" {
		prepared.ContentType = message.DefaultContentType
	}
	if b.accessControl != nil {
		prepared = b.accessControl.Enrich(prepared)
	}
	if b.authentication != nil {
		var err error
		prepared, err = b.authentication.Prepare(prepared)
		if err != nil {
			return "", fmt.Errorf("securebus: authenticating %s: %w", prepared.MessageID, err)
		}
	}

	body, err := prepared.Encode()
	if err != nil {
		return "", err
	}
	headers := map[string]string{
		HeaderSenderID:    prepared.SenderID,
		HeaderRecipientID: prepared.RecipientID,
		HeaderMessageID:   prepared.MessageID,
	}
	brokerID, err := b.broker.Publish(ctx, TopicAgents, prepared.RecipientID, body, headers)
	if err != nil {
		return "", fmt.Errorf("securebus: publishing %s: %w", prepared.MessageID, err)
	}
	b.logger.Debug("message sent", "message_id", prepared.MessageID, "path", prepared.Path(), "broker_id", brokerID)
	return brokerID, nil
}

// Broadcast sends a copy of msg to each recipient, each with its own
// message id. It returns the broker ids of the copies that were sent
// and the joined failures.
func (b *Bus) Broadcast(ctx context.Context, msg *message.Message, recipients []string) ([]string, error) {
	var sent []string
	var failures []error
	for _, recipient := range recipients {
		copied := msg.Clone()
		copied.RecipientID = recipient
		copied.MessageID = uuid.NewString()
		copied.Signature = ""
		copied.SignatureMetadata = nil
		brokerID, err := b.Send(ctx, copied)
		if err != nil {
			failures = append(failures, fmt.Errorf("to %s: %w", recipient, err))
			continue
		}
		sent = append(sent, brokerID)
	}
	return sent, errors.Join(failures...)
}

// Close unregisters every agent. The broker stays open.
func (b *Bus) Close(ctx context.Context) error {
	var failures []error
	for _, agentID := range b.Agents() {
		if err := b.UnregisterAgent(ctx, agentID); err != nil && !errors.Is(err, ErrAgentNotRegistered) {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}
