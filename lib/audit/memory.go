// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"slices"
	"sync"
)

// Memory is a Recorder that keeps events in memory, for tests and
// short-lived tools. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// Denied returns the recorded events with Allowed false.
func (m *Memory) Denied() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var denied []Event
	for _, event := range m.events {
		if !event.Allowed {
			denied = append(denied, event)
		}
	}
	return denied
}
