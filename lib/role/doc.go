// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package role implements named, inheritable permission bundles and the
// entity-to-role assignment table.
//
// A Role carries a direct permission set and a list of parent role
// names. An entity's effective permissions are the union of the direct
// permissions of every role reachable from its assignments by following
// parent links. The walk is breadth-first with a visited set, so parent
// cycles terminate and each distinct role contributes exactly once.
// Parent names that do not resolve to a role are logged and skipped:
// a dangling reference narrows the grant rather than failing the check.
//
// # Built-in roles
//
// NewManager seeds seven roles (admin, user, observer, agent, tool,
// service, system) with the bundles from package permission. Built-in
// roles can be updated but not deleted. Restore replaces the whole
// table, built-ins included, with persisted state.
//
// # Deletion safety
//
// DeleteRole refuses while any other role names the target as a parent
// or any entity holds it, so a delete never silently strips permissions
// from a live principal.
package role
