// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock injects time into the security services so expiry and
// rotation are testable without sleeping.
//
// Everything in Nexus that compares against "now" (ACL entry expiry,
// signing-key expiry and grace periods, token exp/nbf, the periodic
// rotation check) holds a Clock instead of calling the time package.
// Production wiring passes Real(); tests pass Fake(start) and move time
// explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	keys := signingkey.NewManager(signingkey.Config{Clock: fake})
//	fake.Advance(31 * 24 * time.Hour) // current key is now expired
//
// # Tickers
//
// The only scheduled work is the key rotator's periodic check, so the
// interface carries NewTicker and nothing else. A goroutine that
// creates a ticker on a FakeClock registers it; tests call
// WaitForTickers before Advance so the tick is not lost to the race
// between registration and advancement.
package clock
