// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for nexus packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only place in the test suite where real wall-clock timeouts are
// used; everything else runs on a clock.FakeClock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation: message ids, agent ids, queue names.
//
// [Logger] returns a slog.Logger whose records go to t.Log, so log
// output appears only for failing or verbose tests.
//
// [WriteFile] writes a fixture into a fresh t.TempDir.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no nexus-internal dependencies.
package testutil
