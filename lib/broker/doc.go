// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker defines the publish/subscribe interface the secure
// bus runs on, plus an in-memory implementation for tests and
// single-process deployments.
//
// The model is exchange-style: publishers send to a topic with a
// routing key, queues are bound to topics under a binding key, and
// subscribers consume from queues. A binding key of "" or "#" receives
// every message on the topic; any other key must equal the routing key.
// Messages published to a topic with no matching binding are dropped.
//
// Each consumed message arrives as a [Delivery] and stays pending until
// the consumer acknowledges or negatively acknowledges it by delivery
// id. A negative acknowledgment requeues the message until the queue's
// attempt limit, then moves it to the queue's dead-letter queue when
// one is configured, or drops it.
package broker
