// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed               = errors.New("broker: closed")
	ErrTopicNotFound        = errors.New("broker: topic not found")
	ErrQueueNotFound        = errors.New("broker: queue not found")
	ErrQueueFull            = errors.New("broker: queue full")
	ErrSubscriptionNotFound = errors.New("broker: subscription not found")
	ErrDeliveryNotFound     = errors.New("broker: delivery not found")
)

// Delivery is one message handed to a subscriber.
type Delivery struct {
	// ID identifies this delivery attempt for Acknowledge and
	// NegativeAcknowledge.
	ID string

	// MessageID is the id Publish returned. It is stable across
	// redeliveries.
	MessageID string

	Topic       string
	RoutingKey  string
	Queue       string
	Body        []byte
	Headers     map[string]string
	PublishedAt time.Time

	// Attempt counts deliveries of this message, starting at 1.
	Attempt int
}

// Handler consumes deliveries. It runs on the subscription's goroutine
// and must acknowledge or negatively acknowledge each delivery.
type Handler func(ctx context.Context, delivery Delivery)

// QueueOptions configures a queue at creation.
type QueueOptions struct {
	// DeadLetterQueue receives messages that exhaust MaxAttempts.
	// Empty drops them.
	DeadLetterQueue string

	// MaxAttempts bounds deliveries per message. Zero means the
	// broker default.
	MaxAttempts int
}

// Health is the result of HealthCheck.
type Health struct {
	Healthy       bool   `json:"healthy"`
	Detail        string `json:"detail,omitempty"`
	Topics        int    `json:"topics"`
	Queues        int    `json:"queues"`
	Subscriptions int    `json:"subscriptions"`
	Pending       int    `json:"pending"`
}

// Broker is a message broker. Implementations are safe for concurrent
// use. Creating a topic or queue that exists is not an error.
type Broker interface {
	CreateTopic(ctx context.Context, name string) error
	CreateQueue(ctx context.Context, name string, options QueueOptions) error
	BindQueue(ctx context.Context, queue, topic, bindingKey string) error

	// Publish routes body to every queue bound to topic under a
	// matching key and returns the message id.
	Publish(ctx context.Context, topic, routingKey string, body []byte, headers map[string]string) (string, error)

	// Subscribe starts consuming queue and returns a subscription id.
	// Several subscriptions on one queue compete for its messages.
	Subscribe(ctx context.Context, queue string, handler Handler) (string, error)

	Acknowledge(ctx context.Context, deliveryID string) error
	NegativeAcknowledge(ctx context.Context, deliveryID, reason string) error
	Unsubscribe(ctx context.Context, subscriptionID string) error

	HealthCheck(ctx context.Context) Health
	Close() error
}
