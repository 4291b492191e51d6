// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration shared by every nexus
// package that writes binary state.
//
// The split between formats:
//
//   - JSON for anything an operator edits or a peer reads: roles.json,
//     policies.json, acls.json, messages on the bus, CLI output.
//   - CBOR for files only nexus reads back: the sealed signing key
//     store, key exports and backups, compressed audit exports.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical value always produces identical bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(zstdWriter)
//
// # Struct Tags
//
// A `cbor` tag marks a type that is only ever CBOR. A `json` tag marks
// a type that is both; fxamacker/cbor falls back to `json` tags when no
// `cbor` tag is present. Never put both on one field.
package codec
