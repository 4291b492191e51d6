// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for nexus-security.
//
// The central type is [Command]: a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. The tree is assembled in cmd/nexus-security and dispatched
// via [Command.Execute], which parses flags, routes subcommands, and
// prints help with examples.
//
// An unknown subcommand or flag is answered with the closest known
// name by Levenshtein distance (at most 3).
//
// [NewCommandLogger] picks a text or JSON slog handler depending on
// whether stderr is a terminal. [JSONOutput] adds a --json flag to
// commands that print structured results.
package cli
