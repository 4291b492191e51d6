// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission defines the capability statements that every other
// access-control layer in Nexus is built on.
//
// A Permission is an immutable triple of resource type, action, and
// resource instance. Its string form is "type:action[:instance]", with
// the instance defaulting to "*":
//
//	message:create:planner   send messages to the planner agent
//	tool:execute             execute any tool
//	*:*                      full access
//
// # Implication
//
// Permission p implies q when p's type equals q's type or is Any, p's
// action equals q's action or is Any, and p's instance equals q's
// instance or is "*". General permissions subsume specific ones; there
// is no deeper hierarchy (no prefix matching on instances, no action
// ordering such as "manage implies update").
//
// # Forward compatibility
//
// Parse degrades unknown resource types and actions to Any so that a
// configuration written for a newer release still loads. ParseStrict
// rejects them and is meant for operator input where a typo should be
// reported rather than silently widened.
//
// # Sets
//
// Set is an unordered collection with implication-aware membership:
// Has reports true when any member implies the queried permission. Set
// is not safe for concurrent mutation; owners (roles, ACL entries)
// guard it with their own locks and hand out copies.
package permission
