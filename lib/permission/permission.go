// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidPermission is returned when a permission string does not
// have two or three colon-separated parts, or (from ParseStrict) names
// an unknown resource type or action.
var ErrInvalidPermission = errors.New("permission: invalid permission string")

// ResourceType classifies the thing a permission is about.
type ResourceType string

const (
	ResourceAgent    ResourceType = "agent"
	ResourceMessage  ResourceType = "message"
	ResourceWorkflow ResourceType = "workflow"
	ResourceTool     ResourceType = "tool"
	ResourceService  ResourceType = "service"
	ResourceConfig   ResourceType = "config"
	ResourceData     ResourceType = "data"
	ResourceSystem   ResourceType = "system"

	// ResourceAny matches every resource type. Serialized as "*";
	// "any" is accepted on input.
	ResourceAny ResourceType = "*"
)

// ResourceTypes lists every concrete resource type, excluding Any.
var ResourceTypes = []ResourceType{
	ResourceAgent, ResourceMessage, ResourceWorkflow, ResourceTool,
	ResourceService, ResourceConfig, ResourceData, ResourceSystem,
}

// Action is the operation a permission allows.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
	ActionManage  Action = "manage"
	ActionList    Action = "list"

	// ActionAny matches every action. Serialized as "*"; "any" is
	// accepted on input.
	ActionAny Action = "*"
)

// Actions lists every concrete action, excluding Any.
var Actions = []Action{
	ActionCreate, ActionRead, ActionUpdate, ActionDelete,
	ActionExecute, ActionManage, ActionList,
}

// AnyInstance is the wildcard resource instance.
const AnyInstance = "*"

// ParseResourceType maps a string to a ResourceType. The second return
// value is false when the string is not a known type, in which case
// ResourceAny is returned.
func ParseResourceType(value string) (ResourceType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "*" || normalized == "any" {
		return ResourceAny, true
	}
	for _, resourceType := range ResourceTypes {
		if string(resourceType) == normalized {
			return resourceType, true
		}
	}
	return ResourceAny, false
}

// ParseAction maps a string to an Action. The second return value is
// false when the string is not a known action, in which case ActionAny
// is returned.
func ParseAction(value string) (Action, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "*" || normalized == "any" {
		return ActionAny, true
	}
	for _, action := range Actions {
		if string(action) == normalized {
			return action, true
		}
	}
	return ActionAny, false
}

// Permission is a (resource type, action, instance) triple. The zero
// value is not meaningful; construct with New or Parse.
type Permission struct {
	Type     ResourceType
	Action   Action
	Instance string
}

// New returns a Permission. An empty instance becomes AnyInstance.
func New(resourceType ResourceType, action Action, instance string) Permission {
	if instance == "" {
		instance = AnyInstance
	}
	return Permission{Type: resourceType, Action: action, Instance: instance}
}

// Parse parses "type:action[:instance]". Unknown types and actions
// degrade to Any with a warning on the default logger.
func Parse(value string) (Permission, error) {
	typePart, actionPart, instance, err := split(value)
	if err != nil {
		return Permission{}, err
	}
	resourceType, ok := ParseResourceType(typePart)
	if !ok {
		slog.Warn("unknown resource type, using any", "resource_type", typePart, "permission", value)
	}
	action, ok := ParseAction(actionPart)
	if !ok {
		slog.Warn("unknown action, using any", "action", actionPart, "permission", value)
	}
	return New(resourceType, action, instance), nil
}

// ParseStrict is Parse without degradation: unknown types and actions
// are reported as ErrInvalidPermission.
func ParseStrict(value string) (Permission, error) {
	typePart, actionPart, instance, err := split(value)
	if err != nil {
		return Permission{}, err
	}
	resourceType, ok := ParseResourceType(typePart)
	if !ok {
		return Permission{}, fmt.Errorf("%w: unknown resource type %q in %q", ErrInvalidPermission, typePart, value)
	}
	action, ok := ParseAction(actionPart)
	if !ok {
		return Permission{}, fmt.Errorf("%w: unknown action %q in %q", ErrInvalidPermission, actionPart, value)
	}
	return New(resourceType, action, instance), nil
}

// MustParse is Parse for package-level tables. Panics on malformed input.
func MustParse(value string) Permission {
	parsed, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func split(value string) (string, string, string, error) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return "", "", "", fmt.Errorf("%w: %q (expected type:action[:instance])", ErrInvalidPermission, value)
	}
	instance := AnyInstance
	if len(parts) == 3 && parts[2] != "" {
		instance = parts[2]
	}
	return parts[0], parts[1], instance, nil
}

// String returns "type:action:instance".
func (p Permission) String() string {
	return string(p.Type) + ":" + string(p.Action) + ":" + p.instance()
}

func (p Permission) instance() string {
	if p.Instance == "" {
		return AnyInstance
	}
	return p.Instance
}

// Implies reports whether holding p is sufficient for other.
func (p Permission) Implies(other Permission) bool {
	if p.Type != ResourceAny && p.Type != other.Type {
		return false
	}
	if p.Action != ActionAny && p.Action != other.Action {
		return false
	}
	instance := p.instance()
	return instance == AnyInstance || instance == other.instance()
}

// IsWildcardInstance reports whether the permission covers every
// instance of its resource type.
func (p Permission) IsWildcardInstance() bool {
	return p.instance() == AnyInstance
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using Parse.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
