// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package acl

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/bureau-foundation/nexus/lib/permission"
)

// ErrNoMatchingEntries is returned by List.Remove when nothing matches.
var ErrNoMatchingEntries = errors.New("acl: no matching entries")

// Entry is a single grant.
type Entry struct {
	EntityID    string          `json:"entity_id"`
	Permissions *permission.Set `json:"permissions"`

	// ResourceType scopes the entry to one type. Empty means every type.
	ResourceType permission.ResourceType `json:"resource_type,omitempty"`

	// ResourceID scopes the entry to one instance. Empty means every
	// instance within ResourceType.
	ResourceID string `json:"resource_id,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata"`
}

// Expired reports whether now is past the entry's expiry.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// AppliesTo reports whether the entry's scope covers the resource.
// An unscoped entry covers everything; an instance-scoped entry needs
// a matching id; a type-scoped entry needs a matching type, and a
// matching id when it also names one.
func (e *Entry) AppliesTo(resourceType permission.ResourceType, resourceID string) bool {
	if e.ResourceType == "" {
		return e.ResourceID == "" || e.ResourceID == resourceID
	}
	if e.ResourceType != resourceType {
		return false
	}
	return e.ResourceID == "" || e.ResourceID == resourceID
}

// String renders the entry for logs.
func (e *Entry) String() string {
	scope := "*"
	if e.ResourceType != "" || e.ResourceID != "" {
		scope = string(e.ResourceType) + "/" + e.ResourceID
	}
	return fmt.Sprintf("%s %v on %s", e.EntityID, e.Permissions.Strings(), scope)
}

func (e *Entry) clone() *Entry {
	clone := *e
	clone.Permissions = e.Permissions.Clone()
	clone.Metadata = maps.Clone(e.Metadata)
	if e.ExpiresAt != nil {
		expires := *e.ExpiresAt
		clone.ExpiresAt = &expires
	}
	return &clone
}

// List is an unordered collection of entries. Not safe for concurrent
// use; the Manager serializes access.
type List struct {
	entries []*Entry
}

// Add appends an entry.
func (l *List) Add(entry *Entry) {
	l.entries = append(l.entries, entry)
}

// Remove deletes every entry for entityID whose scope equals the given
// type and id. An empty type or id matches any value.
func (l *List) Remove(entityID string, resourceType permission.ResourceType, resourceID string) error {
	before := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, func(entry *Entry) bool {
		return entry.EntityID == entityID &&
			(resourceType == "" || entry.ResourceType == resourceType) &&
			(resourceID == "" || entry.ResourceID == resourceID)
	})
	if len(l.entries) == before {
		return fmt.Errorf("%w: entity %q", ErrNoMatchingEntries, entityID)
	}
	return nil
}

// Entries returns the unexpired entries whose scope covers the
// resource. An empty entityID matches every entity.
func (l *List) Entries(entityID string, resourceType permission.ResourceType, resourceID string, now time.Time) []*Entry {
	var result []*Entry
	for _, entry := range l.entries {
		if entityID != "" && entry.EntityID != entityID {
			continue
		}
		if entry.Expired(now) || !entry.AppliesTo(resourceType, resourceID) {
			continue
		}
		result = append(result, entry)
	}
	return result
}

// Check reports whether an unexpired, in-scope entry for entityID
// implies p.
func (l *List) Check(entityID string, p permission.Permission, resourceID string, now time.Time) bool {
	for _, entry := range l.Entries(entityID, p.Type, resourceID, now) {
		if entry.Permissions.Has(p) {
			return true
		}
	}
	return false
}

// Permissions unions the permissions of the matching entries.
func (l *List) Permissions(entityID string, resourceType permission.ResourceType, resourceID string, now time.Time) *permission.Set {
	result := permission.NewSet()
	for _, entry := range l.Entries(entityID, resourceType, resourceID, now) {
		result.Merge(entry.Permissions)
	}
	return result
}

// PurgeExpired removes expired entries and returns how many.
func (l *List) PurgeExpired(now time.Time) int {
	before := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, func(entry *Entry) bool {
		return entry.Expired(now)
	})
	return before - len(l.entries)
}

// Len returns the number of entries, expired ones included.
func (l *List) Len() int {
	return len(l.entries)
}

// listDocument is the persisted form of a List.
type listDocument struct {
	Entries []*Entry `json:"entries"`
}

func (l *List) document() listDocument {
	document := listDocument{Entries: make([]*Entry, 0, len(l.entries))}
	for _, entry := range l.entries {
		document.Entries = append(document.Entries, entry.clone())
	}
	return document
}

func listFromDocument(document listDocument) *List {
	list := &List{}
	for _, entry := range document.Entries {
		if entry == nil {
			continue
		}
		clone := entry.clone()
		if clone.Permissions == nil {
			clone.Permissions = permission.NewSet()
		}
		list.Add(clone)
	}
	return list
}
