// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/nexus/lib/clock"
	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/signingkey"
)

// Algorithm is the only supported signature algorithm.
const Algorithm = "hmac-sha256"

var (
	// ErrSignature is returned when a message cannot be signed.
	ErrSignature = errors.New("signing: cannot sign message")

	// ErrAuthentication is the parent of every verification error.
	ErrAuthentication = errors.New("signing: authentication error")

	ErrMissingSignature     = fmt.Errorf("%w: missing signature", ErrAuthentication)
	ErrMalformedMetadata    = fmt.Errorf("%w: signature metadata lacks key id or algorithm", ErrAuthentication)
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported algorithm", ErrAuthentication)
	ErrUnknownKeyID         = fmt.Errorf("%w: unknown key id", ErrAuthentication)
)

// Signer signs and verifies messages with keys from a Manager.
type Signer struct {
	keys  *signingkey.Manager
	clock clock.Clock
}

// NewSigner returns a Signer. A nil clock means the wall clock.
func NewSigner(keys *signingkey.Manager, source clock.Clock) *Signer {
	if source == nil {
		source = clock.Real()
	}
	return &Signer{keys: keys, clock: source}
}

// Sign returns a signed copy of msg. Any existing signature is
// replaced.
func (s *Signer) Sign(msg *message.Message) (*message.Message, error) {
	key, err := s.keys.CurrentKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	signed := msg.Clone()
	signed.Signature = ""
	signed.SignatureMetadata = &message.SignatureMetadata{
		KeyID:     key.ID,
		Algorithm: Algorithm,
		Timestamp: float64(s.clock.Now().UnixNano()) / float64(time.Second),
	}
	canonical, err := signed.Canonical()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	signed.Signature = hex.EncodeToString(mac(key.Material, canonical))
	return signed, nil
}

// Verify checks msg's signature against the key it names. A signature
// that does not match returns false with a nil error.
func (s *Signer) Verify(msg *message.Message) (bool, error) {
	if msg.Signature == "" || msg.SignatureMetadata == nil {
		return false, ErrMissingSignature
	}
	metadata := msg.SignatureMetadata
	if metadata.KeyID == "" || metadata.Algorithm == "" {
		return false, ErrMalformedMetadata
	}
	if metadata.Algorithm != Algorithm {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, metadata.Algorithm)
	}
	key, err := s.keys.Key(metadata.KeyID)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrUnknownKeyID, metadata.KeyID)
	}

	canonical, err := msg.Canonical()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	presented, err := hex.DecodeString(msg.Signature)
	if err != nil {
		return false, nil
	}
	return hmac.Equal(presented, mac(key.Material, canonical)), nil
}

func mac(key, data []byte) []byte {
	digest := hmac.New(sha256.New, key)
	digest.Write(data)
	return digest.Sum(nil)
}
