// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package role

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/nexus/lib/permission"
)

var (
	// ErrRoleNotFound is returned for operations naming an unknown role.
	ErrRoleNotFound = errors.New("role: not found")

	// ErrRoleExists is returned by AddRole on a name collision.
	ErrRoleExists = errors.New("role: already exists")

	// ErrRoleInUse is returned by DeleteRole while the role is a parent
	// of another role or is assigned to an entity.
	ErrRoleInUse = errors.New("role: in use")

	// ErrBuiltinRole is returned by DeleteRole for the seeded roles.
	ErrBuiltinRole = errors.New("role: built-in role cannot be deleted")

	// ErrRoleNotAssigned is returned by RevokeRole when the entity does
	// not hold the role.
	ErrRoleNotAssigned = errors.New("role: not assigned to entity")

	// ErrParentNotFound is returned by Role.RemoveParent when the name
	// is not a parent.
	ErrParentNotFound = errors.New("role: parent not found")
)

// Built-in role names.
const (
	Admin    = "admin"
	User     = "user"
	Observer = "observer"
	Agent    = "agent"
	Tool     = "tool"
	Service  = "service"
	System   = "system"
)

// Builtins lists the built-in role names in seeding order.
var Builtins = []string{Admin, User, Observer, Agent, Tool, Service, System}

// IsBuiltin reports whether name is one of the seeded roles.
func IsBuiltin(name string) bool {
	return slices.Contains(Builtins, name)
}

// Role is a named permission bundle with optional parents.
type Role struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Permissions *permission.Set `json:"permissions"`
	ParentRoles []string        `json:"parent_roles"`
}

// New returns a role with a copy of permissions (nil means none).
func New(name, description string, permissions *permission.Set, parents ...string) *Role {
	role := &Role{
		Name:        name,
		Description: description,
		Permissions: permissions.Clone(),
		ParentRoles: []string{},
	}
	for _, parent := range parents {
		role.AddParent(parent)
	}
	return role
}

// AddPermission grants p directly to the role.
func (r *Role) AddPermission(p permission.Permission) {
	r.ensure()
	r.Permissions.Add(p)
}

// RemovePermission removes a direct permission.
func (r *Role) RemovePermission(p permission.Permission) error {
	r.ensure()
	if err := r.Permissions.Remove(p); err != nil {
		return fmt.Errorf("role %q: %w", r.Name, err)
	}
	return nil
}

// HasDirectPermission tests only the role's own set, ignoring parents.
func (r *Role) HasDirectPermission(p permission.Permission) bool {
	return r.Permissions.Has(p)
}

// AddParent appends a parent role name. Duplicates are ignored.
func (r *Role) AddParent(name string) {
	if !slices.Contains(r.ParentRoles, name) {
		r.ParentRoles = append(r.ParentRoles, name)
	}
}

// RemoveParent removes a parent role name.
func (r *Role) RemoveParent(name string) error {
	index := slices.Index(r.ParentRoles, name)
	if index < 0 {
		return fmt.Errorf("%w: %q is not a parent of %q", ErrParentNotFound, name, r.Name)
	}
	r.ParentRoles = slices.Delete(r.ParentRoles, index, index+1)
	return nil
}

// Clone returns a deep copy.
func (r *Role) Clone() *Role {
	return &Role{
		Name:        r.Name,
		Description: r.Description,
		Permissions: r.Permissions.Clone(),
		ParentRoles: slices.Clone(r.ParentRoles),
	}
}

func (r *Role) ensure() {
	if r.Permissions == nil {
		r.Permissions = permission.NewSet()
	}
}

func builtinRoles() []*Role {
	return []*Role{
		New(Admin, "Administrator with full access", permission.AdminPermissions()),
		New(User, "Regular user with standard access", permission.UserPermissions()),
		New(Observer, "Read-only access to the system", permission.ObserverPermissions()),
		New(Agent, "Standard agent permissions", permission.AgentPermissions()),
		New(Tool, "Tool execution permissions", permission.ToolPermissions()),
		New(Service, "Service-level permissions", permission.ServicePermissions()),
		New(System, "System-level permissions", permission.SystemPermissions()),
	}
}
