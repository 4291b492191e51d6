// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package accesscontrol

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/nexus/lib/permission"
	"github.com/bureau-foundation/nexus/lib/policy"
	"github.com/bureau-foundation/nexus/lib/role"
)

// Manager is the operator interface to a Service. Each mutation saves
// the configuration when the service has a directory.
type Manager struct {
	service *Service
}

// NewManager returns a Manager for service.
func NewManager(service *Service) *Manager {
	return &Manager{service: service}
}

func (m *Manager) save() error {
	if m.service.dir == "" {
		return nil
	}
	return m.service.Save()
}

// CreateRole adds a role built from permission strings.
func (m *Manager) CreateRole(name, description string, permissions []string, parents []string) (*role.Role, error) {
	set, err := permission.ParseSet(permissions)
	if err != nil {
		return nil, err
	}
	created := role.New(name, description, set, parents...)
	if err := m.service.roles.AddRole(created); err != nil {
		return nil, err
	}
	return created, m.save()
}

// CreatePolicy adds policy to layer, "default" when empty.
func (m *Manager) CreatePolicy(created *policy.Policy, layer string) error {
	if layer == "" {
		layer = policy.LayerDefault
	}
	if err := m.service.policies.AddPolicy(created, layer); err != nil {
		return err
	}
	return m.save()
}

// GrantACLPermission grants resourceType:action, scoped to resourceID
// when given.
func (m *Manager) GrantACLPermission(entityID, resourceType, action, resourceID string, expiresIn time.Duration) error {
	granted, err := permission.ParseStrict(resourceType + ":" + action)
	if err != nil {
		return err
	}
	if resourceID != "" {
		granted.Instance = resourceID
	}
	m.service.Grant(entityID, granted, resourceID, expiresIn)
	return m.save()
}

// AssignRoleToEntity assigns a role.
func (m *Manager) AssignRoleToEntity(entityID, name string) error {
	if err := m.service.AssignRole(entityID, name); err != nil {
		return err
	}
	return m.save()
}

// CheckPermission evaluates resourceType:action[:resourceID] for
// entityID and explains the outcome.
func (m *Manager) CheckPermission(ctx context.Context, entityID, resourceType, action, resourceID string) (bool, string, error) {
	requested, err := permission.ParseStrict(resourceType + ":" + action)
	if err != nil {
		return false, "", err
	}
	if resourceID != "" {
		requested.Instance = resourceID
	}
	decision := m.service.Check(ctx, entityID, requested, resourceID)
	return decision.Allowed, decision.Reason, nil
}

// EntityPermissions summarizes what an entity holds.
type EntityPermissions struct {
	EntityID             string   `json:"entity_id"`
	Roles                []string `json:"roles"`
	DirectPermissions    []string `json:"direct_permissions"`
	EffectivePermissions []string `json:"effective_permissions"`
}

// ListEntityPermissions reports an entity's roles, its ACL grants, and
// the union of both.
func (m *Manager) ListEntityPermissions(entityID string) EntityPermissions {
	direct := m.service.acls.Permissions(entityID)
	effective := m.service.roles.EntityPermissions(entityID)
	effective.Merge(direct)
	roles := m.service.roles.EntityRoles(entityID)
	if roles == nil {
		roles = []string{}
	}
	return EntityPermissions{
		EntityID:             entityID,
		Roles:                roles,
		DirectPermissions:    direct.Strings(),
		EffectivePermissions: effective.Strings(),
	}
}

// ListRoles returns copies of every role, sorted by name.
func (m *Manager) ListRoles() ([]*role.Role, error) {
	names := m.service.roles.Roles()
	roles := make([]*role.Role, 0, len(names))
	for _, name := range names {
		found, err := m.service.roles.Role(name)
		if err != nil {
			return nil, fmt.Errorf("accesscontrol: listing roles: %w", err)
		}
		roles = append(roles, found)
	}
	return roles, nil
}

// ListPolicies returns every policy with its layer.
func (m *Manager) ListPolicies() []policy.Placement {
	return m.service.policies.Policies()
}
