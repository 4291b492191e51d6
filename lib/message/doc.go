// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package message defines the unit agents exchange over the bus and
// its canonical byte form.
//
// The wire form is JSON. Decode uses json.Number for every numeric
// value so that content survives a decode/encode cycle byte for byte,
// which is what lets a receiver recompute the sender's signature over
// [Message.Canonical].
package message
