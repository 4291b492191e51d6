// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records access-control and authentication decisions.
//
// Services take a [Recorder] and call Record once per decision. [Log]
// is the durable implementation, one SQLite table behind a
// sqlitepool.Pool. [Log.Export] writes the table as a zstd-compressed
// stream of CBOR-encoded events, oldest first, which [ReadExport]
// decodes. [Discard] drops everything and is what a nil Recorder
// means to the rest of the module.
package audit
