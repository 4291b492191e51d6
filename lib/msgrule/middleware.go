// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msgrule

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bureau-foundation/nexus/lib/message"
)

// Middleware applies a fixed rule list to inbound messages.
type Middleware struct {
	rules  []Rule
	strict bool
	logger *slog.Logger
}

// NewMiddleware returns a Middleware over rules. A nil logger
// discards.
func NewMiddleware(rules []Rule, strict bool, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Middleware{rules: rules, strict: strict, logger: logger}
}

// Check runs every rule and joins the failures.
func (m *Middleware) Check(msg *message.Message) error {
	var failures []error
	for _, rule := range m.rules {
		if err := rule.Check(msg); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

// Wrap checks each message before next sees it.
func (m *Middleware) Wrap(next message.Handler) message.Handler {
	return func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		if err := m.Check(msg); err != nil {
			if m.strict {
				m.logger.Error("message failed validation, dropped",
					"message_id", msg.MessageID, "path", msg.Path(), "error", err)
				return nil, nil
			}
			m.logger.Warn("message failed validation, delivered in lenient mode",
				"message_id", msg.MessageID, "path", msg.Path(), "error", err)
		}
		return next(ctx, msg)
	}
}
