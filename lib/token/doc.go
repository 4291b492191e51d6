// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package token issues and validates HS256 JSON Web Tokens signed with
// the signing-key manager's keys.
//
// The header's "kid" names the signing key, so a token issued before a
// rotation keeps validating until its key is purged. Payloads carry
// sub, iat, nbf, exp, and jti plus any caller claims; the standard
// claims cannot be overridden by the caller.
//
// Validate answers (claims, true) or (nil, false) and never returns an
// error: a malformed segment, an unexpected algorithm, an unknown kid,
// a bad signature, a revoked jti, or a time outside [nbf, exp] all
// look the same to the caller. Times compare at whole-second
// resolution, inclusive at both ends.
//
// [Revocations] is a deny list of token ids that forgets each entry
// once the token would have expired anyway.
package token
