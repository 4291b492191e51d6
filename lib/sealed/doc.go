// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts data at rest with age x25519 keys.
//
// The signing key store, backups, and key exports are sealed to the
// public half of an age identity held on the same machine. [Seal]
// produces the binary age format for files the process owns;
// [SealArmored] produces the PEM-style armored format for exports an
// operator may paste or mail. [Open] accepts either.
//
// Identities and decrypted plaintext are returned as [secret.Buffer]
// values so they never sit on the Go heap longer than a parse.
// [LoadIdentity] and [WriteIdentity] move an identity to and from a
// 0600 file.
package sealed
