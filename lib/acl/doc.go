// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package acl implements time-bounded, entity-scoped permission grants.
//
// An Entry grants one entity a set of permissions, optionally scoped to
// a resource type or a single resource instance, optionally expiring.
// Entries are additive: there is no deny at this layer, and an expired
// entry behaves exactly as if it had been removed (it is skipped by
// every read) until PurgeExpired sweeps it.
//
// The Manager partitions entries into one global list plus one list
// per (resource type, resource id) pair, with id "" holding type-wide
// grants. Grant places an entry by the permission it carries:
//
//	*:*:*                  → global list, unscoped
//	tool:execute:*         → tool type list, scoped to type tool
//	message:create:planner → message/planner list, scoped to that instance
//
// HasPermission consults the global list, then the type list, then the
// instance list, and stops at the first entry that implies the request.
package acl
