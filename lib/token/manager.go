// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bureau-foundation/nexus/lib/clock"
	"github.com/bureau-foundation/nexus/lib/signingkey"
)

// DefaultLifetime applies when neither Config nor Issue names one.
const DefaultLifetime = 60 * time.Minute

var (
	// ErrIssue is returned when a token cannot be signed.
	ErrIssue = errors.New("token: cannot issue token")

	// ErrInvalidToken is returned by Revoke for a token that does not
	// validate.
	ErrInvalidToken = errors.New("token: invalid token")
)

// Claims is a validated token payload. Numbers decode as json.Number.
type Claims map[string]any

// Subject returns the sub claim.
func (c Claims) Subject() string {
	subject, _ := c["sub"].(string)
	return subject
}

// ID returns the jti claim.
func (c Claims) ID() string {
	id, _ := c["jti"].(string)
	return id
}

// ExpiresAt returns the exp claim, or the zero time.
func (c Claims) ExpiresAt() time.Time {
	expires, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || expires == nil {
		return time.Time{}
	}
	return expires.Time
}

// Has reports whether the claim is present.
func (c Claims) Has(name string) bool {
	_, exists := c[name]
	return exists
}

// Config configures a Manager.
type Config struct {
	Keys *signingkey.Manager

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// Lifetime defaults to DefaultLifetime.
	Lifetime time.Duration

	// Revocations defaults to a new empty set.
	Revocations *Revocations

	Logger *slog.Logger
}

// Manager issues and validates tokens.
type Manager struct {
	keys        *signingkey.Manager
	clock       clock.Clock
	lifetime    time.Duration
	revocations *Revocations
	logger      *slog.Logger
	parser      *jwt.Parser
}

// NewManager returns a Manager.
func NewManager(config Config) *Manager {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Lifetime <= 0 {
		config.Lifetime = DefaultLifetime
	}
	if config.Revocations == nil {
		config.Revocations = NewRevocations()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		keys:        config.Keys,
		clock:       config.Clock,
		lifetime:    config.Lifetime,
		revocations: config.Revocations,
		logger:      config.Logger,
		// Time claims are checked against the injected clock in
		// Validate, at whole seconds with inclusive bounds.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithJSONNumber(),
		),
	}
}

// Issue returns a signed token for subject. Zero lifetime means the
// configured default.
func (m *Manager) Issue(subject string, claims map[string]any, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = m.lifetime
	}
	key, err := m.keys.CurrentKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIssue, err)
	}

	now := m.clock.Now().Unix()
	payload := jwt.MapClaims{}
	maps.Copy(payload, claims)
	payload["sub"] = subject
	payload["iat"] = now
	payload["nbf"] = now
	payload["exp"] = now + int64(lifetime/time.Second)
	payload["jti"] = uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	token.Header["kid"] = key.ID
	signed, err := token.SignedString(key.Material)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIssue, err)
	}
	return signed, nil
}

// Validate checks signature, key, time bounds, and revocation.
func (m *Manager) Validate(tokenString string) (Claims, bool) {
	claims, err := m.parse(tokenString)
	if err != nil {
		m.logger.Debug("token rejected", "error", err)
		return nil, false
	}
	now := m.clock.Now().Unix()
	expires, err := claims.GetExpirationTime()
	if err != nil || expires == nil || now > expires.Unix() {
		m.logger.Debug("token rejected", "reason", "expired or no exp", "jti", claims["jti"])
		return nil, false
	}
	notBefore, err := claims.GetNotBefore()
	if err != nil || (notBefore != nil && now < notBefore.Unix()) {
		m.logger.Debug("token rejected", "reason", "not yet valid", "jti", claims["jti"])
		return nil, false
	}
	if id, _ := claims["jti"].(string); id != "" && m.revocations.IsRevoked(id) {
		m.logger.Debug("token rejected", "reason", "revoked", "jti", id)
		return nil, false
	}
	return Claims(claims), true
}

func (m *Manager) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := m.parser.Parse(tokenString, func(token *jwt.Token) (any, error) {
		keyID, _ := token.Header["kid"].(string)
		if keyID == "" {
			return nil, fmt.Errorf("token: header has no kid")
		}
		key, err := m.keys.Key(keyID)
		if err != nil {
			return nil, err
		}
		return key.Material, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("token: unexpected claims type %T", token.Claims)
	}
	return claims, nil
}

// Revoke rejects a currently valid token from now until it expires.
func (m *Manager) Revoke(tokenString string) error {
	claims, valid := m.Validate(tokenString)
	if !valid {
		return ErrInvalidToken
	}
	id := claims.ID()
	if id == "" {
		return fmt.Errorf("%w: no jti claim", ErrInvalidToken)
	}
	m.revocations.Revoke(id, claims.ExpiresAt())
	m.logger.Info("token revoked", "jti", id, "subject", claims.Subject())
	return nil
}

// Revocations returns the manager's revocation set.
func (m *Manager) Revocations() *Revocations {
	return m.revocations
}

// CleanupRevocations forgets revocations of tokens that have expired.
func (m *Manager) CleanupRevocations() int {
	return m.revocations.Cleanup(m.clock.Now())
}

// Int64 reads a numeric claim.
func (c Claims) Int64(name string) (int64, bool) {
	switch value := c[name].(type) {
	case json.Number:
		parsed, err := value.Int64()
		return parsed, err == nil
	case float64:
		return int64(value), true
	case int64:
		return value, true
	}
	return 0, false
}
