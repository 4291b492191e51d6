// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signingkey manages the symmetric keys behind message
// signatures and tokens.
//
// A [Manager] holds every known key by id plus a pointer to the
// current one. Signing always uses the current key; verification looks
// keys up by the id carried in the signature, which is what lets a
// message signed just before a rotation still verify afterwards.
//
// Lifecycle:
//
//   - [Manager.Rotate] installs a fresh current key and marks the old
//     one inactive (verification only).
//   - [Manager.CurrentKey] rotates first when the current key has
//     expired, so nothing is ever signed with an expired key.
//   - [Manager.PurgeExpired] drops keys past expiry plus a grace
//     period. The current key is never purged.
//   - [Manager.EmergencyRotate] discards every key. Anything signed
//     before it no longer verifies.
//
// [Store] persists a manager as deterministic CBOR sealed with age to
// a local identity. [Rotator] drives rotation and purging on a
// schedule and saves after each change.
//
// Key material never appears in logs; [Key.Fingerprint] does.
package signingkey
