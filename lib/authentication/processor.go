// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authentication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/nexus/lib/audit"
	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/signing"
)

// Mode selects how a Processor authenticates messages.
type Mode string

const (
	ModeSignature Mode = "signature"
	ModeToken     Mode = "token"
)

var (
	// ErrUnauthenticated is the parent of every inbound failure.
	ErrUnauthenticated = errors.New("authentication: message not authenticated")

	// ErrInvalidMode is returned for a Mode other than ModeSignature
	// or ModeToken.
	ErrInvalidMode = errors.New("authentication: invalid mode")
)

// DefaultRequiredClaims must be present in every inbound token.
var DefaultRequiredClaims = []string{"sub", "exp"}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	Service *Service

	// Mode defaults to ModeSignature.
	Mode Mode

	// Strict drops messages that fail authentication.
	Strict bool

	// ExemptPaths are "sender:recipient" pattern pairs. Nil means
	// message.DefaultExemptPaths; an empty non-nil slice exempts
	// nothing.
	ExemptPaths []string

	// RequiredClaims applies in ModeToken. Nil means
	// DefaultRequiredClaims.
	RequiredClaims []string

	Recorder audit.Recorder
	Logger   *slog.Logger
}

// Processor authenticates outbound and inbound messages.
type Processor struct {
	service        *Service
	mode           Mode
	strict         bool
	exempt         *message.PathSet
	requiredClaims []string
	recorder       audit.Recorder
	logger         *slog.Logger
}

// NewProcessor validates config and returns a Processor.
func NewProcessor(config ProcessorConfig) (*Processor, error) {
	switch config.Mode {
	case "":
		config.Mode = ModeSignature
	case ModeSignature, ModeToken:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, config.Mode)
	}
	if config.ExemptPaths == nil {
		config.ExemptPaths = message.DefaultExemptPaths
	}
	if config.RequiredClaims == nil {
		config.RequiredClaims = DefaultRequiredClaims
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	exempt, err := message.ParsePathSet(config.ExemptPaths)
	if err != nil {
		return nil, err
	}

	config.Logger.Info("authentication processor configured",
		"mode", config.Mode,
		"strict", config.Strict,
		"exempt_paths", exempt.Len(),
	)
	return &Processor{
		service:        config.Service,
		mode:           config.Mode,
		strict:         config.Strict,
		exempt:         exempt,
		requiredClaims: config.RequiredClaims,
		recorder:       audit.OrDiscard(config.Recorder),
		logger:         config.Logger,
	}, nil
}

// Mode returns the processor's mode.
func (p *Processor) Mode() Mode {
	return p.mode
}

// Exempt reports whether msg's path matches an exempt pattern.
func (p *Processor) Exempt(msg *message.Message) bool {
	return p.exempt.Match(msg)
}

// Prepare returns msg ready to send: signed in ModeSignature, carrying
// a token in ModeToken. Exempt messages come back unchanged.
func (p *Processor) Prepare(msg *message.Message) (*message.Message, error) {
	if p.Exempt(msg) {
		p.logger.Debug("message exempt from authentication", "message_id", msg.MessageID, "path", msg.Path())
		return msg, nil
	}
	if p.mode == ModeSignature {
		return p.service.Sign(msg)
	}

	tokenString, err := p.service.IssueToken(msg.SenderID, map[string]any{
		"msg_id":    msg.MessageID,
		"sender":    msg.SenderID,
		"recipient": msg.RecipientID,
	}, 0)
	if err != nil {
		return nil, err
	}
	prepared := msg.Clone()
	prepared.SetMetadata(message.MetadataAuthToken, tokenString)
	return prepared, nil
}

// Authenticate checks an inbound message. Exempt messages pass.
// Failures wrap ErrUnauthenticated.
func (p *Processor) Authenticate(ctx context.Context, msg *message.Message) error {
	if p.Exempt(msg) {
		p.record(ctx, msg, "exempt", nil)
		return nil
	}
	var err error
	source := string(p.mode)
	if p.mode == ModeSignature {
		err = p.verifySignature(msg)
	} else {
		err = p.verifyToken(msg)
	}
	p.record(ctx, msg, source, err)
	return err
}

func (p *Processor) verifySignature(msg *message.Message) error {
	if msg.Signature == "" || msg.SignatureMetadata == nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, signing.ErrMissingSignature)
	}
	valid, err := p.service.signer.Verify(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !valid {
		return fmt.Errorf("%w: signature mismatch", ErrUnauthenticated)
	}
	return nil
}

func (p *Processor) verifyToken(msg *message.Message) error {
	tokenString := msg.MetadataString(message.MetadataAuthToken)
	if tokenString == "" {
		return fmt.Errorf("%w: no auth token", ErrUnauthenticated)
	}
	claims, valid := p.service.ValidateToken(tokenString)
	if !valid {
		return fmt.Errorf("%w: invalid auth token", ErrUnauthenticated)
	}
	for _, claim := range p.requiredClaims {
		if !claims.Has(claim) {
			return fmt.Errorf("%w: token lacks required claim %q", ErrUnauthenticated, claim)
		}
	}
	if subject := claims.Subject(); subject != msg.SenderID {
		return fmt.Errorf("%w: token subject %q does not match sender %q", ErrUnauthenticated, subject, msg.SenderID)
	}
	return nil
}

func (p *Processor) record(ctx context.Context, msg *message.Message, source string, failure error) {
	event := audit.Event{
		Kind:     audit.KindAuthentication,
		EntityID: msg.SenderID,
		Resource: msg.Path(),
		Action:   "verify",
		Allowed:  failure == nil,
		Source:   source,
	}
	if failure != nil {
		event.Reason = failure.Error()
	}
	if err := p.recorder.Record(ctx, event); err != nil {
		p.logger.Warn("audit record failed", "message_id", msg.MessageID, "error", err)
	}
}

// Middleware authenticates each inbound message before next sees it
// and prepares next's response for sending.
func (p *Processor) Middleware(next message.Handler) message.Handler {
	inbound := p.Inbound(next)
	return func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		response, err := inbound(ctx, msg)
		if err != nil || response == nil {
			return response, err
		}
		return p.Prepare(response)
	}
}

// Inbound authenticates each inbound message before next sees it and
// returns next's response unprepared, for callers that sign responses
// on their own send path.
func (p *Processor) Inbound(next message.Handler) message.Handler {
	return func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		if err := p.Authenticate(ctx, msg); err != nil {
			if p.strict {
				p.logger.Error("dropping unauthenticated message",
					"message_id", msg.MessageID,
					"path", msg.Path(),
					"error", err,
				)
				return nil, nil
			}
			p.logger.Warn("accepting unauthenticated message",
				"message_id", msg.MessageID,
				"path", msg.Path(),
				"error", err,
			)
		}
		return next(ctx, msg)
	}
}
