// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package securebus carries agent messages over a [broker.Broker] with
// authentication, message rules, and access control applied on both
// ends.
//
// Outbound, [Bus.Send] enriches a message with the sender's roles and
// permissions, signs it (or attaches a token), and publishes it to the
// agents topic under the recipient's id. Inbound, each registered
// agent's handler is wrapped so that authentication runs first, then
// the message rules, then access control. A handler's non-nil response
// is sent back through Send, which enriches and signs it like any other
// outbound message.
//
// Each layer is optional: a Bus built without an authentication
// processor neither signs nor verifies, and so on. Strict and lenient
// behavior belongs to the layers themselves.
package securebus
