// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer, for tests that need distinct
// message ids or agent names without consulting the clock.
//
//	messageID := testutil.UniqueID("msg")  // "msg-1", "msg-2", ...
//	agentID := testutil.UniqueID("agent")  // "agent-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
