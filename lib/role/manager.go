// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package role

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/bureau-foundation/nexus/lib/permission"
)

// Manager owns the role table and the entity assignments. Safe for
// concurrent use; roles are copied in and out so callers never share
// mutable state with the manager.
type Manager struct {
	mu          sync.RWMutex
	roles       map[string]*Role
	assignments map[string][]string
	logger      *slog.Logger
}

// NewManager returns a manager seeded with the built-in roles. A nil
// logger discards output.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	manager := &Manager{
		roles:       make(map[string]*Role),
		assignments: make(map[string][]string),
		logger:      logger,
	}
	for _, role := range builtinRoles() {
		manager.roles[role.Name] = role
	}
	return manager
}

// AddRole inserts a copy of role.
func (m *Manager) AddRole(role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.roles[role.Name]; exists {
		return fmt.Errorf("%w: %q", ErrRoleExists, role.Name)
	}
	m.roles[role.Name] = role.Clone()
	return nil
}

// Role returns a copy of the named role.
func (m *Manager) Role(name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, exists := m.roles[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, name)
	}
	return role.Clone(), nil
}

// UpdateRole replaces an existing role with a copy of role.
func (m *Manager) UpdateRole(role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.roles[role.Name]; !exists {
		return fmt.Errorf("%w: %q", ErrRoleNotFound, role.Name)
	}
	m.roles[role.Name] = role.Clone()
	return nil
}

// DeleteRole removes a role that is neither built-in, a parent of
// another role, nor assigned to any entity.
func (m *Manager) DeleteRole(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.roles[name]; !exists {
		return fmt.Errorf("%w: %q", ErrRoleNotFound, name)
	}
	if IsBuiltin(name) {
		return fmt.Errorf("%w: %q", ErrBuiltinRole, name)
	}
	for _, childName := range sortedKeys(m.roles) {
		if slices.Contains(m.roles[childName].ParentRoles, name) {
			return fmt.Errorf("%w: %q is a parent of %q", ErrRoleInUse, name, childName)
		}
	}
	for _, entityID := range sortedKeys(m.assignments) {
		if slices.Contains(m.assignments[entityID], name) {
			return fmt.Errorf("%w: %q is assigned to entity %q", ErrRoleInUse, name, entityID)
		}
	}
	delete(m.roles, name)
	return nil
}

// AssignRole gives entityID the named role. Reassigning is a no-op.
func (m *Manager) AssignRole(entityID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.roles[name]; !exists {
		return fmt.Errorf("%w: %q", ErrRoleNotFound, name)
	}
	if !slices.Contains(m.assignments[entityID], name) {
		m.assignments[entityID] = append(m.assignments[entityID], name)
	}
	return nil
}

// RevokeRole removes a role from entityID. The entity's entry is
// dropped once it holds no roles.
func (m *Manager) RevokeRole(entityID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	assigned := m.assignments[entityID]
	index := slices.Index(assigned, name)
	if index < 0 {
		return fmt.Errorf("%w: %q does not hold %q", ErrRoleNotAssigned, entityID, name)
	}
	assigned = slices.Delete(assigned, index, index+1)
	if len(assigned) == 0 {
		delete(m.assignments, entityID)
	} else {
		m.assignments[entityID] = assigned
	}
	return nil
}

// EntityRoles returns the roles directly assigned to entityID, in
// assignment order.
func (m *Manager) EntityRoles(entityID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.assignments[entityID])
}

// HasRole reports whether entityID holds name directly.
func (m *Manager) HasRole(entityID, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.assignments[entityID], name)
}

// Roles returns every role name, sorted.
func (m *Manager) Roles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.roles)
}

// EntityPermissions returns the effective permission set of entityID:
// the direct permissions of every role reachable from its assignments.
func (m *Manager) EntityPermissions(entityID string) *permission.Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(slices.Clone(m.assignments[entityID]))
}

// RolePermissions returns the effective permissions of a single role,
// parents included.
func (m *Manager) RolePermissions(name string) (*permission.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, exists := m.roles[name]; !exists {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, name)
	}
	return m.resolveLocked([]string{name}), nil
}

// HasPermission reports whether entityID's effective permissions imply p.
func (m *Manager) HasPermission(entityID string, p permission.Permission) bool {
	return m.EntityPermissions(entityID).Has(p)
}

// resolveLocked walks roles breadth-first from queue. Caller holds mu.
func (m *Manager) resolveLocked(queue []string) *permission.Set {
	result := permission.NewSet()
	visited := make(map[string]struct{})
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, seen := visited[name]; seen {
			continue
		}
		visited[name] = struct{}{}

		role, exists := m.roles[name]
		if !exists {
			m.logger.Warn("skipping unknown role during permission resolution", "role", name)
			continue
		}
		result.Merge(role.Permissions)
		queue = append(queue, role.ParentRoles...)
	}
	return result
}

// Document is the persisted form of a Manager (roles.json).
type Document struct {
	Roles           map[string]*Role    `json:"roles"`
	RoleAssignments map[string][]string `json:"role_assignments"`
}

// Snapshot returns a deep copy of the manager's state.
func (m *Manager) Snapshot() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	document := Document{
		Roles:           make(map[string]*Role, len(m.roles)),
		RoleAssignments: make(map[string][]string, len(m.assignments)),
	}
	for name, role := range m.roles {
		document.Roles[name] = role.Clone()
	}
	for entityID, names := range m.assignments {
		document.RoleAssignments[entityID] = slices.Clone(names)
	}
	return document
}

// Restore replaces the manager's state, built-ins included, with
// document. Roles are keyed by their own Name field; the map key is
// used only when the role has no name.
func (m *Manager) Restore(document Document) {
	roles := make(map[string]*Role, len(document.Roles))
	for key, role := range document.Roles {
		if role == nil {
			continue
		}
		clone := role.Clone()
		if clone.Name == "" {
			clone.Name = key
		}
		clone.ensure()
		if clone.ParentRoles == nil {
			clone.ParentRoles = []string{}
		}
		roles[clone.Name] = clone
	}
	assignments := make(map[string][]string, len(document.RoleAssignments))
	for entityID, names := range document.RoleAssignments {
		if len(names) > 0 {
			assignments[entityID] = slices.Clone(names)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles = roles
	m.assignments = assignments
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
