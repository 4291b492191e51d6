// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds sensitive bytes (the key store's age identity,
// decrypted key material) outside the Go heap.
//
// [Buffer] allocates memory via mmap(MAP_ANONYMOUS), locks it into RAM
// with mlock, and marks it MADV_DONTDUMP. Close zeros, unlocks, and
// unmaps it. The garbage collector never sees the region, so it cannot
// leave stray copies behind.
//
// Constructors:
//
//   - [New] allocates a zero-filled buffer of a given size
//   - [NewFromBytes] copies into protected memory and zeros the source
//   - [ReadFromPath] reads a file (or stdin for "-"), trimming whitespace
//
// [Buffer.Equal] compares in constant time. After Close, any access
// panics. Close is idempotent.
package secret
