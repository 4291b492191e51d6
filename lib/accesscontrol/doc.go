// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package accesscontrol answers "may this entity do this?" by
// consulting ACL grants, role membership, and the policy engine, and
// puts that answer on the message and tool paths.
//
// [Service.Evaluate] tries the three sources in order: an ACL grant
// allows, then a role that implies the permission allows, then the
// policy engine decides. Undetermined is a denial. The permission's
// instance names the policy resource when it is not "*"; otherwise the
// request's resource id does. With Config.PolicyDenyOverrides set, the
// policy engine is consulted first and an explicit deny wins over any
// ACL or role grant.
//
// A Service with a configuration directory persists its state as
// roles.json, policies.json, and acls.json. Files may carry comments
// and trailing commas. A file that fails to load is logged and the
// in-memory defaults stay in place.
//
// [Middleware] requires every inbound message's sender to hold
// message:create:<recipient>, applies the same rule to responses, and
// [Middleware.Enrich] stamps outbound messages with the sender's roles
// and message permissions. [Service.CheckToolAccess] and
// [Service.WrapTool] guard tool invocations with tool:execute:<name>.
// [Manager] is the operator surface used by the CLI; every mutation it
// makes is saved.
package accesscontrol
