// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy implements prioritized, pattern-matched allow/deny
// rules and the layered engine that evaluates them.
//
// A Policy matches a request Context when its entity, resource, and
// action pattern lists each match (resource patterns are matched
// against "type:id") and every condition holds. Patterns are exact
// strings, "*", or one-sided wildcards:
//
//	planner        exactly "planner"
//	admin*         prefix
//	*_agent        suffix
//	*secret*       contains
//
// Conditions map a dotted path into the context to an expected value.
// The first path segment names a context field (entity_id,
// resource_type, resource_id, action, environment, timestamp,
// message_metadata, additional_context); later segments descend
// through nested maps. An expected value of "*" requires the path to
// resolve to a non-nil value, a list requires membership, anything
// else requires equality (numbers compare numerically, so 3 and 3.0
// from JSON are equal).
//
// # Layers
//
// The Engine holds four kinds of Set: per-entity, per-resource-type,
// per-action, and default. Evaluate checks them in that order and the
// first layer to produce allow or deny decides, so a narrow per-entity
// rule overrides the default layer whatever the priorities say. Within
// a Set, policies are tried in descending priority (ties in insertion
// order) and the first match decides. If nothing matches the result is
// Undetermined, which callers treat as deny.
package policy
