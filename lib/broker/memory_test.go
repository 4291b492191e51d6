// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/nexus/lib/clock"
	"github.com/bureau-foundation/nexus/lib/testutil"
)

const timeout = 5 * time.Second

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBroker(t *testing.T, config MemoryConfig) *Memory {
	t.Helper()
	if config.Clock == nil {
		config.Clock = clock.Fake(epoch)
	}
	config.Logger = testutil.Logger(t)
	broker := NewMemory(config)
	t.Cleanup(func() { _ = broker.Close() })
	return broker
}

// setup creates topic and queue and binds them under key.
func setup(t *testing.T, broker *Memory, topic, queueName, key string, options QueueOptions) {
	t.Helper()
	ctx := context.Background()
	if err := broker.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if err := broker.CreateQueue(ctx, queueName, options); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if err := broker.BindQueue(ctx, queueName, topic, key); err != nil {
		t.Fatalf("BindQueue: %v", err)
	}
}

// collect subscribes to queueName and forwards every delivery.
func collect(t *testing.T, broker *Memory, queueName string) (string, <-chan Delivery) {
	t.Helper()
	deliveries := make(chan Delivery, 16)
	id, err := broker.Subscribe(context.Background(), queueName, func(_ context.Context, delivery Delivery) {
		deliveries <- delivery
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return id, deliveries
}

func TestRouting(t *testing.T) {
	broker := newTestBroker(t, MemoryConfig{})
	ctx := context.Background()
	setup(t, broker, "nexus.agents", "agent_planner", "planner", QueueOptions{})
	setup(t, broker, "nexus.agents", "agent_executor", "executor", QueueOptions{})
	setup(t, broker, "nexus.agents", "tap", "#", QueueOptions{})

	_, planner := collect(t, broker, "agent_planner")
	_, executor := collect(t, broker, "agent_executor")
	_, tap := collect(t, broker, "tap")

	id, err := broker.Publish(ctx, "nexus.agents", "executor", []byte("run"), map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := testutil.RequireReceive(t, executor, timeout, "executor delivery")
	if got.MessageID != id || string(got.Body) != "run" || got.Headers["k"] != "v" || got.Attempt != 1 {
		t.Errorf("delivery = %+v", got)
	}
	if !got.PublishedAt.Equal(epoch) || got.Queue != "agent_executor" || got.RoutingKey != "executor" {
		t.Errorf("delivery routing fields = %+v", got)
	}
	if tapped := testutil.RequireReceive(t, tap, timeout, "tap delivery"); tapped.MessageID != id {
		t.Errorf("tap MessageID = %s, want %s", tapped.MessageID, id)
	}
	select {
	case stray := <-planner:
		t.Errorf("planner received %+v", stray)
	case <-time.After(50 * time.Millisecond): //nolint:realclock negative wait
	}
}

func TestUnroutableAndErrors(t *testing.T) {
	broker := newTestBroker(t, MemoryConfig{})
	ctx := context.Background()
	if err := broker.CreateTopic(ctx, "events"); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if _, err := broker.Publish(ctx, "events", "nobody", nil, nil); err != nil {
		t.Errorf("unroutable Publish: %v", err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish to missing topic", func() error { _, err := broker.Publish(ctx, "missing", "", nil, nil); return err }(), ErrTopicNotFound},
		{"bind missing queue", broker.BindQueue(ctx, "missing", "events", ""), ErrQueueNotFound},
		{"bind missing topic", broker.BindQueue(ctx, "missing", "nowhere", ""), ErrTopicNotFound},
		{"subscribe missing queue", func() error {
			_, err := broker.Subscribe(ctx, "missing", func(context.Context, Delivery) {})
			return err
		}(), ErrQueueNotFound},
		{"ack unknown delivery", broker.Acknowledge(ctx, testutil.UniqueID("delivery")), ErrDeliveryNotFound},
		{"nack unknown delivery", broker.NegativeAcknowledge(ctx, testutil.UniqueID("delivery"), "x"), ErrDeliveryNotFound},
		{"unsubscribe unknown", broker.Unsubscribe(ctx, testutil.UniqueID("subscription")), ErrSubscriptionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestQueueFull(t *testing.T) {
	broker := newTestBroker(t, MemoryConfig{QueueCapacity: 1})
	ctx := context.Background()
	setup(t, broker, "events", "slow", "", QueueOptions{})
	if _, err := broker.Publish(ctx, "events", "", []byte("1"), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := broker.Publish(ctx, "events", "", []byte("2"), nil); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Publish error = %v, want ErrQueueFull", err)
	}
}

func TestAcknowledge(t *testing.T) {
	broker := newTestBroker(t, MemoryConfig{})
	ctx := context.Background()
	setup(t, broker, "events", "work", "", QueueOptions{})
	_, deliveries := collect(t, broker, "work")
	if _, err := broker.Publish(ctx, "events", "", []byte("job"), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	delivery := testutil.RequireReceive(t, deliveries, timeout, "delivery")
	if health := broker.HealthCheck(ctx); health.Pending != 1 {
		t.Errorf("Pending before ack = %d, want 1", health.Pending)
	}
	if err := broker.Acknowledge(ctx, delivery.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if err := broker.Acknowledge(ctx, delivery.ID); !errors.Is(err, ErrDeliveryNotFound) {
		t.Errorf("second Acknowledge error = %v, want ErrDeliveryNotFound", err)
	}
	if health := broker.HealthCheck(ctx); health.Pending != 0 {
		t.Errorf("Pending after ack = %d, want 0", health.Pending)
	}
}

func TestNegativeAcknowledgeRetriesThenDeadLetters(t *testing.T) {
	broker := newTestBroker(t, MemoryConfig{})
	ctx := context.Background()
	if err := broker.CreateQueue(ctx, "dead", QueueOptions{}); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	setup(t, broker, "events", "work", "", QueueOptions{DeadLetterQueue: "dead", MaxAttempts: 2})
	_, deliveries := collect(t, broker, "work")
	_, dead := collect(t, broker, "dead")

	id, err := broker.Publish(ctx, "events", "", []byte("poison"), nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for attempt := 1; attempt <= 2; attempt++ {
		delivery := testutil.RequireReceive(t, deliveries, timeout, "attempt %d", attempt)
		if delivery.Attempt != attempt || delivery.MessageID != id {
			t.Errorf("attempt %d delivery = %+v", attempt, delivery)
		}
		if err := broker.NegativeAcknowledge(ctx, delivery.ID, "handler failed"); err != nil {
			t.Fatalf("NegativeAcknowledge: %v", err)
		}
	}
	lettered := testutil.RequireReceive(t, dead, timeout, "dead letter")
	if lettered.MessageID != id || lettered.Headers[HeaderDeadLetterReason] != "handler failed" || lettered.Attempt != 1 {
		t.Errorf("dead letter = %+v", lettered)
	}
}

func TestUnsubscribeRequeuesOutstanding(t *testing.T) {
	broker := newTestBroker(t, MemoryConfig{})
	ctx := context.Background()
	setup(t, broker, "events", "work", "", QueueOptions{})
	first, deliveries := collect(t, broker, "work")
	if _, err := broker.Publish(ctx, "events", "", []byte("job"), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	unacked := testutil.RequireReceive(t, deliveries, timeout, "first delivery")
	if err := broker.Unsubscribe(ctx, first); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	_, again := collect(t, broker, "work")
	redelivered := testutil.RequireReceive(t, again, timeout, "redelivery")
	if redelivered.MessageID != unacked.MessageID || redelivered.Attempt != 2 || redelivered.ID == unacked.ID {
		t.Errorf("redelivery = %+v, first = %+v", redelivered, unacked)
	}
}

func TestClose(t *testing.T) {
	broker := NewMemory(MemoryConfig{})
	ctx := context.Background()
	setup(t, broker, "events", "work", "", QueueOptions{})
	collect(t, broker, "work")
	if health := broker.HealthCheck(ctx); !health.Healthy || health.Topics != 1 || health.Queues != 1 || health.Subscriptions != 1 {
		t.Errorf("HealthCheck = %+v", health)
	}
	if err := broker.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := broker.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close error = %v, want ErrClosed", err)
	}
	if _, err := broker.Publish(ctx, "events", "", nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close error = %v, want ErrClosed", err)
	}
	if health := broker.HealthCheck(ctx); health.Healthy || health.Subscriptions != 0 {
		t.Errorf("HealthCheck after Close = %+v", health)
	}
}
