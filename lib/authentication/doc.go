// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authentication ties message signing, token issuance, and key
// lifecycle into one facade and puts it on the message path.
//
// [Service] is the facade: it signs and verifies messages, issues and
// validates tokens, and rotates, purges, exports, and imports keys,
// saving the key store after every change when one is configured.
//
// [Processor] authenticates traffic in one of two modes. In
// [ModeSignature] outbound messages are HMAC-signed and inbound
// messages must verify. In [ModeToken] outbound messages carry a token
// in metadata["auth_token"] whose subject is the sender, and inbound
// tokens must validate, carry the required claims, and name the
// sender as subject. Messages whose "sender:recipient" path matches an
// exempt pattern skip both directions.
//
// In strict mode an inbound message that fails is dropped: the
// middleware returns (nil, nil) without calling the handler. Otherwise
// the failure is logged and the message passes through unchanged.
package authentication
