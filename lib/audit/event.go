// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies an Event.
type Kind string

const (
	KindAccess         Kind = "access"
	KindAuthentication Kind = "authentication"
	KindKey            Kind = "key"
)

// Event is one recorded decision.
type Event struct {
	Time     time.Time `cbor:"time" json:"time"`
	Kind     Kind      `cbor:"kind" json:"kind"`
	EntityID string    `cbor:"entity_id" json:"entity_id"`

	// Resource is "type:id" for access decisions and the message path
	// for authentication decisions.
	Resource string `cbor:"resource" json:"resource"`
	Action   string `cbor:"action" json:"action"`
	Allowed  bool   `cbor:"allowed" json:"allowed"`

	// Source names the component that decided: acl, role, policy,
	// none, signature, token, exempt.
	Source string `cbor:"source" json:"source"`
	Reason string `cbor:"reason,omitempty" json:"reason,omitempty"`
}

func (e Event) String() string {
	verdict := "denied"
	if e.Allowed {
		verdict = "allowed"
	}
	return fmt.Sprintf("%s %s %s: %s %s %s (%s)",
		e.Time.UTC().Format(time.RFC3339), e.Kind, verdict, e.EntityID, e.Action, e.Resource, e.Source)
}

// Recorder accepts decisions.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }

// OrDiscard returns recorder, or Discard when it is nil.
func OrDiscard(recorder Recorder) Recorder {
	if recorder == nil {
		return Discard
	}
	return recorder
}
