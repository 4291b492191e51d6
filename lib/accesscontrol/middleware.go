// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package accesscontrol

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/permission"
)

// MiddlewareConfig configures a Middleware.
type MiddlewareConfig struct {
	// Strict drops messages whose sender lacks permission.
	Strict bool

	// ExemptPaths are "sender:recipient" pattern pairs. Nil means
	// message.DefaultExemptPaths.
	ExemptPaths []string

	Logger *slog.Logger
}

// Middleware enforces message:create:<recipient> on the message path.
type Middleware struct {
	service *Service
	strict  bool
	exempt  *message.PathSet
	logger  *slog.Logger
}

// NewMiddleware returns a Middleware bound to s.
func (s *Service) NewMiddleware(config MiddlewareConfig) (*Middleware, error) {
	if config.ExemptPaths == nil {
		config.ExemptPaths = message.DefaultExemptPaths
	}
	if config.Logger == nil {
		config.Logger = s.logger
	}
	exempt, err := message.ParsePathSet(config.ExemptPaths)
	if err != nil {
		return nil, err
	}
	return &Middleware{service: s, strict: config.Strict, exempt: exempt, logger: config.Logger}, nil
}

// CheckMessage decides whether msg's sender may send it to its
// recipient.
func (m *Middleware) CheckMessage(ctx context.Context, msg *message.Message) Decision {
	if m.exempt.Match(msg) {
		return Decision{Allowed: true, Source: SourceExempt, Reason: "Exempt path"}
	}
	metadata := map[string]any{
		"content_type": msg.ContentType,
		"message_id":   msg.MessageID,
	}
	if !msg.Timestamp.IsZero() {
		metadata["timestamp"] = float64(msg.Timestamp.UnixNano()) / float64(time.Second)
	}
	return m.service.Evaluate(ctx, Request{
		EntityID:        msg.SenderID,
		Permission:      permission.New(permission.ResourceMessage, permission.ActionCreate, msg.RecipientID),
		ResourceID:      msg.RecipientID,
		MessageMetadata: metadata,
	})
}

// admit reports whether msg may proceed, logging refusals.
func (m *Middleware) admit(ctx context.Context, msg *message.Message, direction string) bool {
	decision := m.CheckMessage(ctx, msg)
	if decision.Allowed {
		return true
	}
	attributes := []any{
		"direction", direction,
		"message_id", msg.MessageID,
		"path", msg.Path(),
		"source", decision.Source,
		"reason", decision.Reason,
	}
	if m.strict {
		m.logger.Error("access denied, message dropped", attributes...)
		return false
	}
	m.logger.Warn("access denied, message allowed in lenient mode", attributes...)
	return true
}

// Wrap checks each inbound message before next sees it and each
// response before it is returned.
func (m *Middleware) Wrap(next message.Handler) message.Handler {
	return func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		if !m.admit(ctx, msg, "inbound") {
			return nil, nil
		}
		response, err := next(ctx, msg)
		if err != nil || response == nil {
			return response, err
		}
		if !m.admit(ctx, response, "response") {
			return nil, nil
		}
		return response, nil
	}
}

// Enrich returns a copy of msg with metadata["roles"] set to the
// sender's roles and metadata["permissions"] to the sender's ACL
// permissions on the recipient. A message that already carries
// permissions is returned as a plain copy.
func (m *Middleware) Enrich(msg *message.Message) *message.Message {
	enriched := msg.Clone()
	if _, present := enriched.MetadataValue(message.MetadataPermissions); present {
		return enriched
	}
	roles := m.service.roles.EntityRoles(msg.SenderID)
	if roles == nil {
		roles = []string{}
	}
	enriched.SetMetadata(message.MetadataRoles, roles)
	permissions := m.service.acls.ScopedPermissions(msg.SenderID, permission.ResourceMessage, msg.RecipientID)
	enriched.SetMetadata(message.MetadataPermissions, permissions.Strings())
	return enriched
}
