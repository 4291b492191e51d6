// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package acl

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/nexus/lib/clock"
	"github.com/bureau-foundation/nexus/lib/permission"
)

// Manager owns the global list and the per-resource lists. Safe for
// concurrent use.
type Manager struct {
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.RWMutex
	global *List

	// resources maps resource type → resource id → list. Id "" holds
	// entries that cover every instance of the type.
	resources map[permission.ResourceType]map[string]*List
}

// NewManager returns an empty manager. A nil clock means the wall
// clock; a nil logger discards.
func NewManager(source clock.Clock, logger *slog.Logger) *Manager {
	if source == nil {
		source = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		clock:     source,
		logger:    logger,
		global:    &List{},
		resources: make(map[permission.ResourceType]map[string]*List),
	}
}

// resolveInstance returns the resource id a request addresses. A
// non-wildcard instance in p always wins over resourceID.
func resolveInstance(p permission.Permission, resourceID string) string {
	if !p.IsWildcardInstance() {
		return p.Instance
	}
	return resourceID
}

// scope resolves the list key and entry scope for a permission.
func scope(p permission.Permission, resourceID string) (permission.ResourceType, string) {
	resourceID = resolveInstance(p, resourceID)
	if p.Type == permission.ResourceAny {
		return "", resourceID
	}
	return p.Type, resourceID
}

// Grant gives entityID the permission p. Any-type permissions go to
// the global list; others are scoped to their type and, when an
// instance or resourceID names one, to that instance. expiresIn of
// zero never expires.
func (m *Manager) Grant(entityID string, p permission.Permission, resourceID string, expiresIn time.Duration) {
	resourceType, resourceID := scope(p, resourceID)
	m.add(entityID, permission.NewSet(p), resourceType, resourceID, expiresIn)
}

// GrantSet gives entityID every permission in permissions as a single
// entry scoped to resourceType and resourceID. An empty resourceType
// places the entry in the global list.
func (m *Manager) GrantSet(entityID string, permissions *permission.Set, resourceType permission.ResourceType, resourceID string, expiresIn time.Duration) {
	if resourceType == permission.ResourceAny {
		resourceType = ""
	}
	m.add(entityID, permissions.Clone(), resourceType, resourceID, expiresIn)
}

func (m *Manager) add(entityID string, permissions *permission.Set, resourceType permission.ResourceType, resourceID string, expiresIn time.Duration) {
	now := m.clock.Now()
	entry := &Entry{
		EntityID:     entityID,
		Permissions:  permissions,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CreatedAt:    now,
		Metadata:     map[string]any{},
	}
	if expiresIn > 0 {
		expires := now.Add(expiresIn)
		entry.ExpiresAt = &expires
	}

	m.mu.Lock()
	m.listLocked(resourceType, resourceID).Add(entry)
	m.mu.Unlock()

	m.logger.Debug("acl grant",
		"entity", entityID,
		"permissions", permissions.Strings(),
		"resource_type", string(resourceType),
		"resource_id", resourceID,
		"expires_in", expiresIn,
	)
}

// listLocked returns the list for a scope, creating it. Caller holds
// mu for writing.
func (m *Manager) listLocked(resourceType permission.ResourceType, resourceID string) *List {
	if resourceType == "" {
		return m.global
	}
	byID, exists := m.resources[resourceType]
	if !exists {
		byID = make(map[string]*List)
		m.resources[resourceType] = byID
	}
	list, exists := byID[resourceID]
	if !exists {
		list = &List{}
		byID[resourceID] = list
	}
	return list
}

// lookupLocked returns the list for a scope, or nil. Caller holds mu.
func (m *Manager) lookupLocked(resourceType permission.ResourceType, resourceID string) *List {
	if resourceType == "" {
		return m.global
	}
	return m.resources[resourceType][resourceID]
}

// Revoke removes p from every entry of entityID in the list Grant
// would have placed it in. Entries left empty are dropped. Returns
// ErrNoMatchingEntries when no entry held p.
func (m *Manager) Revoke(entityID string, p permission.Permission, resourceID string) error {
	resourceType, resourceID := scope(p, resourceID)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lookupLocked(resourceType, resourceID)
	if list == nil {
		return fmt.Errorf("%w: %s for %q", ErrNoMatchingEntries, p, entityID)
	}
	removed := 0
	for _, entry := range list.Entries(entityID, resourceType, resourceID, now) {
		if entry.Permissions.Remove(p) == nil {
			removed++
		}
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s for %q", ErrNoMatchingEntries, p, entityID)
	}
	list.entries = slices.DeleteFunc(list.entries, func(entry *Entry) bool {
		return entry.Permissions.Len() == 0
	})
	m.logger.Debug("acl revoke", "entity", entityID, "permission", p.String(), "resource_id", resourceID)
	return nil
}

// RevokeEntity removes every entry for entityID in every list and
// returns how many were removed.
func (m *Manager) RevokeEntity(entityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	m.eachListLocked(func(list *List) {
		before := list.Len()
		_ = list.Remove(entityID, "", "")
		removed += before - list.Len()
	})
	return removed
}

// HasPermission checks the global list, then the list for p's type,
// then the list for the resource instance. A non-wildcard instance in
// p replaces resourceID, and a resourceID narrows a wildcard p to that
// instance.
func (m *Manager) HasPermission(entityID string, p permission.Permission, resourceID string) bool {
	resourceID = resolveInstance(p, resourceID)
	if resourceID != "" {
		p.Instance = resourceID
	}
	now := m.clock.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.global.Check(entityID, p, resourceID, now) {
		return true
	}
	if list := m.resources[p.Type][""]; list != nil && list.Check(entityID, p, resourceID, now) {
		return true
	}
	if resourceID != "" {
		if list := m.resources[p.Type][resourceID]; list != nil && list.Check(entityID, p, resourceID, now) {
			return true
		}
	}
	return false
}

// Permissions unions every unexpired grant held by entityID, whatever
// its scope.
func (m *Manager) Permissions(entityID string) *permission.Set {
	now := m.clock.Now()
	result := permission.NewSet()

	m.mu.RLock()
	defer m.mu.RUnlock()
	m.eachListLocked(func(list *List) {
		for _, entry := range list.entries {
			if entry.EntityID == entityID && !entry.Expired(now) {
				result.Merge(entry.Permissions)
			}
		}
	})
	return result
}

// ScopedPermissions unions entityID's grants that apply to one
// resource: the global list, the type-wide list, and the instance
// list.
func (m *Manager) ScopedPermissions(entityID string, resourceType permission.ResourceType, resourceID string) *permission.Set {
	now := m.clock.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := m.global.Permissions(entityID, resourceType, resourceID, now)
	if list := m.resources[resourceType][""]; list != nil {
		result.Merge(list.Permissions(entityID, resourceType, resourceID, now))
	}
	if resourceID != "" {
		if list := m.resources[resourceType][resourceID]; list != nil {
			result.Merge(list.Permissions(entityID, resourceType, resourceID, now))
		}
	}
	return result
}

// Entries returns copies of the unexpired entries held by entityID in
// every list.
func (m *Manager) Entries(entityID string) []*Entry {
	now := m.clock.Now()
	var result []*Entry

	m.mu.RLock()
	defer m.mu.RUnlock()
	m.eachListLocked(func(list *List) {
		for _, entry := range list.entries {
			if entry.EntityID == entityID && !entry.Expired(now) {
				result = append(result, entry.clone())
			}
		}
	})
	return result
}

// PurgeExpired removes expired entries from every list, drops lists
// left empty, and returns the number of entries removed.
func (m *Manager) PurgeExpired() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.global.PurgeExpired(now)
	for resourceType, byID := range m.resources {
		for resourceID, list := range byID {
			removed += list.PurgeExpired(now)
			if list.Len() == 0 {
				delete(byID, resourceID)
			}
		}
		if len(byID) == 0 {
			delete(m.resources, resourceType)
		}
	}
	if removed > 0 {
		m.logger.Info("purged expired acl entries", "count", removed)
	}
	return removed
}

// eachListLocked visits the global list, then resource lists in key
// order. Caller holds mu.
func (m *Manager) eachListLocked(visit func(*List)) {
	visit(m.global)
	for _, resourceType := range slices.Sorted(maps.Keys(m.resources)) {
		byID := m.resources[resourceType]
		for _, resourceID := range slices.Sorted(maps.Keys(byID)) {
			visit(byID[resourceID])
		}
	}
}

// Document is the persisted form of a Manager (acls.json).
type Document struct {
	GlobalACL    listDocument                       `json:"global_acl"`
	ResourceACLs map[string]map[string]listDocument `json:"resource_acls"`
}

// Snapshot returns the manager's persisted form, expired entries
// included.
func (m *Manager) Snapshot() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()

	document := Document{
		GlobalACL:    m.global.document(),
		ResourceACLs: make(map[string]map[string]listDocument, len(m.resources)),
	}
	for resourceType, byID := range m.resources {
		lists := make(map[string]listDocument, len(byID))
		for resourceID, list := range byID {
			lists[resourceID] = list.document()
		}
		document.ResourceACLs[string(resourceType)] = lists
	}
	return document
}

// Restore replaces every list with the contents of document.
func (m *Manager) Restore(document Document) {
	global := listFromDocument(document.GlobalACL)
	resources := make(map[permission.ResourceType]map[string]*List, len(document.ResourceACLs))
	for typeName, lists := range document.ResourceACLs {
		resourceType, _ := permission.ParseResourceType(typeName)
		byID := resources[resourceType]
		if byID == nil {
			byID = make(map[string]*List, len(lists))
			resources[resourceType] = byID
		}
		for resourceID, list := range lists {
			byID[resourceID] = listFromDocument(list)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = global
	m.resources = resources
}
