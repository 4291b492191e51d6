// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrPermissionNotFound is returned by Set.Remove when the permission
// is not a member.
var ErrPermissionNotFound = errors.New("permission: not in set")

// Set is an unordered set of permissions. The zero value is an empty,
// usable set.
type Set struct {
	items map[Permission]struct{}
}

// NewSet returns a set holding the given permissions.
func NewSet(permissions ...Permission) *Set {
	set := &Set{}
	for _, permission := range permissions {
		set.Add(permission)
	}
	return set
}

// ParseSet builds a set from permission strings, failing on the first
// malformed entry.
func ParseSet(values []string) (*Set, error) {
	set := &Set{}
	for _, value := range values {
		parsed, err := Parse(value)
		if err != nil {
			return nil, err
		}
		set.Add(parsed)
	}
	return set, nil
}

// Add inserts p. Adding an existing member is a no-op.
func (s *Set) Add(p Permission) {
	if s.items == nil {
		s.items = make(map[Permission]struct{})
	}
	s.items[normalize(p)] = struct{}{}
}

// Remove deletes p, returning ErrPermissionNotFound when absent.
func (s *Set) Remove(p Permission) error {
	p = normalize(p)
	if _, exists := s.items[p]; !exists {
		return fmt.Errorf("%w: %s", ErrPermissionNotFound, p)
	}
	delete(s.items, p)
	return nil
}

// Clear removes every member.
func (s *Set) Clear() {
	s.items = nil
}

// Contains reports exact membership without implication.
func (s *Set) Contains(p Permission) bool {
	if s == nil {
		return false
	}
	_, exists := s.items[normalize(p)]
	return exists
}

// Has reports whether p is a member or is implied by a member.
func (s *Set) Has(p Permission) bool {
	if s == nil {
		return false
	}
	if s.Contains(p) {
		return true
	}
	for member := range s.items {
		if member.Implies(p) {
			return true
		}
	}
	return false
}

// HasAny reports whether at least one of the permissions is held.
func (s *Set) HasAny(permissions ...Permission) bool {
	for _, p := range permissions {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of the permissions is held. An empty
// argument list is trivially satisfied.
func (s *Set) HasAll(permissions ...Permission) bool {
	for _, p := range permissions {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Merge adds every member of other to s.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for member := range other.items {
		s.Add(member)
	}
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Permissions returns the members sorted by string form.
func (s *Set) Permissions() []Permission {
	if s == nil {
		return nil
	}
	result := make([]Permission, 0, len(s.items))
	for member := range s.items {
		result = append(result, member)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})
	return result
}

// Strings returns the members' string forms, sorted.
func (s *Set) Strings() []string {
	members := s.Permissions()
	result := make([]string, len(members))
	for index, member := range members {
		result[index] = member.String()
	}
	return result
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	clone := &Set{}
	clone.Merge(s)
	return clone
}

// MarshalJSON encodes the set as a sorted list of permission strings.
func (s *Set) MarshalJSON() ([]byte, error) {
	values := s.Strings()
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// UnmarshalJSON decodes a list of permission strings.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("permission: decoding set: %w", err)
	}
	parsed, err := ParseSet(values)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

func normalize(p Permission) Permission {
	if p.Instance == "" {
		p.Instance = AnyInstance
	}
	return p
}
