// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signingkey

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"
)

// ExportedKey is the interchange form of a key: material as standard
// base64, times as fractional Unix seconds.
type ExportedKey struct {
	Key       string  `json:"key"`
	CreatedAt float64 `json:"created_at"`
	ExpiresAt float64 `json:"expires_at"`
	Active    bool    `json:"active"`
}

func exportKey(key *Key) ExportedKey {
	return ExportedKey{
		Key:       base64.StdEncoding.EncodeToString(key.Material),
		CreatedAt: unixSeconds(key.CreatedAt),
		ExpiresAt: unixSeconds(key.ExpiresAt),
		Active:    key.Active,
	}
}

// Decode converts an exported key back into a Key with the given id.
// Zero timestamps are left zero for Import to default.
func (e ExportedKey) Decode(id string) (Key, error) {
	material, err := base64.StdEncoding.DecodeString(e.Key)
	if err != nil {
		return Key{}, fmt.Errorf("signingkey: decoding material for %q: %w", id, err)
	}
	return Key{
		ID:        id,
		Material:  material,
		CreatedAt: fromUnixSeconds(e.CreatedAt),
		ExpiresAt: fromUnixSeconds(e.ExpiresAt),
		Active:    e.Active,
	}, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(seconds float64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	whole, fraction := math.Modf(seconds)
	return time.Unix(int64(whole), int64(fraction*float64(time.Second))).UTC()
}
