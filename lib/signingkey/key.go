// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signingkey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// MaterialSize is the length of generated key material in bytes.
const MaterialSize = 32

const fingerprintContext = "nexus 2026 signing key fingerprint v1"

// Key is one HMAC key and its lifetime.
type Key struct {
	ID        string
	Material  []byte
	CreatedAt time.Time
	ExpiresAt time.Time

	// Active marks the key as eligible for signing. Only the current
	// key is active.
	Active bool
}

// Expired reports whether now is past ExpiresAt.
func (k *Key) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// Fingerprint is a short, one-way identifier for the material, safe
// to log and display.
func (k *Key) Fingerprint() string {
	var digest [8]byte
	blake3.DeriveKey(fingerprintContext, k.Material, digest[:])
	return hex.EncodeToString(digest[:])
}

func (k *Key) clone() *Key {
	clone := *k
	clone.Material = slices.Clone(k.Material)
	return &clone
}

func generateKey(now time.Time, lifetime time.Duration) (*Key, error) {
	material := make([]byte, MaterialSize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("%w: reading random material: %v", ErrRotation, err)
	}
	return &Key{
		ID:        uuid.NewString(),
		Material:  material,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
		Active:    true,
	}, nil
}
