// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import "context"

// Handler processes one delivered message. A nil response means there
// is nothing to send back. A nil message with a nil error is how a
// middleware reports that it dropped the input.
type Handler func(ctx context.Context, msg *Message) (*Message, error)

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain wraps handler so that middlewares[0] is outermost and sees
// each message first.
func Chain(handler Handler, middlewares ...Middleware) Handler {
	for index := len(middlewares) - 1; index >= 0; index-- {
		handler = middlewares[index](handler)
	}
	return handler
}
