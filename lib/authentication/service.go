// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authentication

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/nexus/lib/audit"
	"github.com/bureau-foundation/nexus/lib/clock"
	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/signing"
	"github.com/bureau-foundation/nexus/lib/signingkey"
	"github.com/bureau-foundation/nexus/lib/token"
)

// Config configures a Service.
type Config struct {
	// Keys is required.
	Keys *signingkey.Manager

	// Store, when set, is saved after every key change.
	Store *signingkey.Store

	Clock clock.Clock

	// TokenLifetime defaults to token.DefaultLifetime.
	TokenLifetime time.Duration

	Recorder audit.Recorder
	Logger   *slog.Logger
}

// Service is the authentication facade.
type Service struct {
	keys     *signingkey.Manager
	store    *signingkey.Store
	signer   *signing.Signer
	tokens   *token.Manager
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewService returns a Service over config.Keys.
func NewService(config Config) *Service {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		keys:   config.Keys,
		store:  config.Store,
		signer: signing.NewSigner(config.Keys, config.Clock),
		tokens: token.NewManager(token.Config{
			Keys:     config.Keys,
			Clock:    config.Clock,
			Lifetime: config.TokenLifetime,
			Logger:   config.Logger,
		}),
		recorder: audit.OrDiscard(config.Recorder),
		logger:   config.Logger,
	}
}

// Keys returns the underlying key manager.
func (s *Service) Keys() *signingkey.Manager {
	return s.keys
}

// Sign returns a signed copy of msg.
func (s *Service) Sign(msg *message.Message) (*message.Message, error) {
	return s.signer.Sign(msg)
}

// Verify reports whether msg carries a valid signature. Verification
// errors are logged and reported as false.
func (s *Service) Verify(msg *message.Message) bool {
	valid, err := s.signer.Verify(msg)
	if err != nil {
		s.logger.Warn("message verification failed", "message_id", msg.MessageID, "error", err)
		return false
	}
	return valid
}

// IssueToken issues a token for subject. Zero lifetime means the
// configured default.
func (s *Service) IssueToken(subject string, claims map[string]any, lifetime time.Duration) (string, error) {
	return s.tokens.Issue(subject, claims, lifetime)
}

// ValidateToken returns the claims of a valid token.
func (s *Service) ValidateToken(tokenString string) (token.Claims, bool) {
	return s.tokens.Validate(tokenString)
}

// RevokeToken rejects a valid token from now on.
func (s *Service) RevokeToken(tokenString string) error {
	return s.tokens.Revoke(tokenString)
}

// RotateKeys installs a new signing key. Earlier keys still verify.
func (s *Service) RotateKeys(ctx context.Context) (string, error) {
	keyID, err := s.keys.Rotate()
	if err != nil {
		return "", err
	}
	s.keyEvent(ctx, "rotate", keyID)
	return keyID, s.save()
}

// EmergencyRotation discards every key and installs a fresh one.
// Everything signed or issued before fails verification afterwards.
func (s *Service) EmergencyRotation(ctx context.Context) (string, error) {
	keyID, err := s.keys.EmergencyRotate()
	if err != nil {
		return "", err
	}
	s.keyEvent(ctx, "emergency_rotate", keyID)
	return keyID, s.save()
}

// PurgeExpiredKeys removes keys expired for longer than grace and
// returns how many were removed.
func (s *Service) PurgeExpiredKeys(ctx context.Context, grace time.Duration) (int, error) {
	removed := s.keys.PurgeExpired(grace)
	if removed == 0 {
		return 0, nil
	}
	s.keyEvent(ctx, "purge", fmt.Sprintf("%d keys", removed))
	return removed, s.save()
}

// KeyInfo describes the current key.
func (s *Service) KeyInfo() signingkey.Info {
	return s.keys.Info()
}

// ExportKeys returns every key in export form. The result contains key
// material.
func (s *Service) ExportKeys() map[string]signingkey.ExportedKey {
	return s.keys.Export()
}

// ImportKeys adds exported keys.
func (s *Service) ImportKeys(ctx context.Context, keys map[string]signingkey.ExportedKey) error {
	if err := s.keys.ImportExported(keys); err != nil {
		return err
	}
	s.keyEvent(ctx, "import", fmt.Sprintf("%d keys", len(keys)))
	return s.save()
}

func (s *Service) save() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(s.keys); err != nil {
		return fmt.Errorf("authentication: saving key store: %w", err)
	}
	return nil
}

func (s *Service) keyEvent(ctx context.Context, action, subject string) {
	err := s.recorder.Record(ctx, audit.Event{
		Kind:     audit.KindKey,
		EntityID: "authentication",
		Resource: subject,
		Action:   action,
		Allowed:  true,
		Source:   "service",
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}
