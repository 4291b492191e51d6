// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signing attaches and checks HMAC-SHA256 message signatures.
//
// Sign stamps a message with the current key's id, the algorithm, and
// the signing time, then MACs the canonical form (which includes that
// stamp) and stores the hex digest in the signature field. Verify
// looks the key up by the stamped id rather than using the current
// key, so messages signed before a rotation keep verifying until the
// old key is purged.
//
// Verify distinguishes a message that cannot be checked (returned as
// an error wrapping ErrAuthentication) from one whose signature simply
// does not match (false, nil).
package signing
