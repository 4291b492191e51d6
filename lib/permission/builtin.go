// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

// FullAccess is the wildcard permission: every action on every instance
// of every resource type.
var FullAccess = New(ResourceAny, ActionAny, AnyInstance)

// Permission bundles for the built-in roles. Each function returns a
// fresh set the caller may mutate.

func AdminPermissions() *Set {
	return NewSet(FullAccess)
}

func UserPermissions() *Set {
	return NewSet(
		New(ResourceAgent, ActionRead, ""),
		New(ResourceAgent, ActionExecute, ""),
		New(ResourceAgent, ActionList, ""),
		New(ResourceMessage, ActionCreate, ""),
		New(ResourceMessage, ActionRead, ""),
		New(ResourceWorkflow, ActionRead, ""),
		New(ResourceWorkflow, ActionExecute, ""),
		New(ResourceTool, ActionRead, ""),
		New(ResourceTool, ActionExecute, ""),
		New(ResourceTool, ActionList, ""),
		New(ResourceData, ActionRead, ""),
		New(ResourceSystem, ActionRead, ""),
	)
}

func ObserverPermissions() *Set {
	return NewSet(
		New(ResourceAgent, ActionRead, ""),
		New(ResourceAgent, ActionList, ""),
		New(ResourceMessage, ActionRead, ""),
		New(ResourceWorkflow, ActionRead, ""),
		New(ResourceTool, ActionRead, ""),
		New(ResourceTool, ActionList, ""),
		New(ResourceData, ActionRead, ""),
		New(ResourceSystem, ActionRead, ""),
	)
}

func AgentPermissions() *Set {
	return NewSet(
		New(ResourceMessage, ActionCreate, ""),
		New(ResourceMessage, ActionRead, ""),
		New(ResourceTool, ActionExecute, ""),
		New(ResourceTool, ActionRead, ""),
		New(ResourceAgent, ActionRead, ""),
		New(ResourceWorkflow, ActionRead, ""),
		New(ResourceData, ActionRead, ""),
	)
}

func ToolPermissions() *Set {
	return NewSet(
		New(ResourceData, ActionRead, ""),
		New(ResourceData, ActionCreate, ""),
		New(ResourceMessage, ActionRead, ""),
	)
}

func ServicePermissions() *Set {
	return NewSet(
		New(ResourceAgent, ActionRead, ""),
		New(ResourceAgent, ActionList, ""),
		New(ResourceMessage, ActionRead, ""),
		New(ResourceMessage, ActionCreate, ""),
		New(ResourceWorkflow, ActionRead, ""),
		New(ResourceTool, ActionRead, ""),
		New(ResourceTool, ActionList, ""),
		New(ResourceData, ActionRead, ""),
	)
}

func SystemPermissions() *Set {
	return NewSet(
		New(ResourceSystem, ActionRead, ""),
		New(ResourceSystem, ActionUpdate, ""),
		New(ResourceSystem, ActionManage, ""),
	)
}
