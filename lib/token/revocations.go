// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"sync"
	"time"
)

// Revocations is a set of revoked token ids, each remembered until the
// token's own expiry. Safe for concurrent use.
type Revocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewRevocations returns an empty set.
func NewRevocations() *Revocations {
	return &Revocations{entries: make(map[string]time.Time)}
}

// Revoke records tokenID until expiresAt.
func (r *Revocations) Revoke(tokenID string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tokenID] = expiresAt
}

// IsRevoked reports whether tokenID has been revoked.
func (r *Revocations) IsRevoked(tokenID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[tokenID]
	return exists
}

// Cleanup forgets entries whose token has expired by now and returns
// how many were removed. Expiry is compared at whole seconds, matching
// Manager.Validate, so an entry outlives every instant its token could
// still validate.
func (r *Revocations) Cleanup(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for tokenID, expiresAt := range r.entries {
		if now.Unix() > expiresAt.Unix() {
			delete(r.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered revocations.
func (r *Revocations) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
