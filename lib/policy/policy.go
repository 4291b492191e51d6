// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrPolicyNotFound is returned when a named policy is not in the
	// set or layer addressed.
	ErrPolicyNotFound = errors.New("policy: not found")

	// ErrUnknownPolicySet is returned for a layer name that is not
	// "default", "entity:<id>", "resource:<type>", or "action:<action>".
	ErrUnknownPolicySet = errors.New("policy: unknown policy set")

	// ErrInvalidEffect is returned when decoding an effect other than
	// allow or deny.
	ErrInvalidEffect = errors.New("policy: invalid effect")
)

// Effect is the outcome a policy contributes.
type Effect string

const (
	Allow        Effect = "allow"
	Deny         Effect = "deny"
	Undetermined Effect = "undetermined"
)

// UnmarshalText accepts "allow" and "deny" in any case.
func (e *Effect) UnmarshalText(text []byte) error {
	switch Effect(strings.ToLower(string(text))) {
	case Allow:
		*e = Allow
	case Deny:
		*e = Deny
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEffect, text)
	}
	return nil
}

// Policy is a single allow or deny rule.
type Policy struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Effect           Effect         `json:"effect"`
	Conditions       map[string]any `json:"conditions"`
	ResourcePatterns []string       `json:"resource_patterns"`
	ActionPatterns   []string       `json:"action_patterns"`
	EntityPatterns   []string       `json:"entity_patterns"`
	Priority         int            `json:"priority"`
}

// Matches reports whether p applies to ctx. Empty pattern lists match
// everything.
func (p *Policy) Matches(ctx *Context) bool {
	if !MatchAny(ctx.EntityID, p.EntityPatterns) {
		return false
	}
	if !MatchAny(ctx.Resource(), p.ResourcePatterns) {
		return false
	}
	if !MatchAny(ctx.Action, p.ActionPatterns) {
		return false
	}
	return ctx.Matches(p.Conditions)
}

// Evaluate returns p's effect when it matches ctx, else Undetermined.
func (p *Policy) Evaluate(ctx *Context) Effect {
	if p.Matches(ctx) {
		return p.Effect
	}
	return Undetermined
}

// Clone returns a copy with independent slices and condition map.
func (p *Policy) Clone() *Policy {
	clone := *p
	clone.Conditions = maps.Clone(p.Conditions)
	clone.ResourcePatterns = slices.Clone(p.ResourcePatterns)
	clone.ActionPatterns = slices.Clone(p.ActionPatterns)
	clone.EntityPatterns = slices.Clone(p.EntityPatterns)
	return &clone
}

// normalized fills the defaults a persisted policy may omit.
func (p *Policy) normalized() *Policy {
	clone := p.Clone()
	if clone.Conditions == nil {
		clone.Conditions = map[string]any{}
	}
	if len(clone.ResourcePatterns) == 0 {
		clone.ResourcePatterns = []string{"*"}
	}
	if len(clone.ActionPatterns) == 0 {
		clone.ActionPatterns = []string{"*"}
	}
	if len(clone.EntityPatterns) == 0 {
		clone.EntityPatterns = []string{"*"}
	}
	if clone.Effect == "" {
		clone.Effect = Allow
	}
	return clone
}

// MatchAny reports whether value matches at least one pattern. An empty
// pattern list matches.
func MatchAny(value string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if MatchPattern(value, pattern) {
			return true
		}
	}
	return false
}

// MatchPattern matches value against one pattern: exact, "*", "x*"
// (prefix), "*x" (suffix), or "*x*" (contains).
func MatchPattern(value, pattern string) bool {
	if pattern == value || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") && strings.HasPrefix(value, pattern[:len(pattern)-1]) {
		return true
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(value, pattern[1:]) {
		return true
	}
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		return strings.Contains(value, pattern[1:len(pattern)-1])
	}
	return false
}

// Set is a priority-ordered list of policies. Not safe for concurrent
// use; the Engine serializes access.
type Set struct {
	policies []*Policy
}

// NewSet returns a set holding copies of policies.
func NewSet(policies ...*Policy) *Set {
	set := &Set{}
	for _, policy := range policies {
		set.Add(policy)
	}
	return set
}

// Add inserts a copy of policy, keeping descending priority order.
// Policies of equal priority keep insertion order.
func (s *Set) Add(policy *Policy) {
	s.policies = append(s.policies, policy.normalized())
	sort.SliceStable(s.policies, func(i, j int) bool {
		return s.policies[i].Priority > s.policies[j].Priority
	})
}

// Remove deletes the first policy named name.
func (s *Set) Remove(name string) error {
	for index, policy := range s.policies {
		if policy.Name == name {
			s.policies = slices.Delete(s.policies, index, index+1)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrPolicyNotFound, name)
}

// Get returns a copy of the first policy named name.
func (s *Set) Get(name string) (*Policy, error) {
	for _, policy := range s.policies {
		if policy.Name == name {
			return policy.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPolicyNotFound, name)
}

// Evaluate returns the effect of the highest-priority matching policy
// and that policy, or Undetermined and nil.
func (s *Set) Evaluate(ctx *Context) (Effect, *Policy) {
	for _, policy := range s.policies {
		if effect := policy.Evaluate(ctx); effect != Undetermined {
			return effect, policy
		}
	}
	return Undetermined, nil
}

// Len returns the number of policies.
func (s *Set) Len() int {
	return len(s.policies)
}

// Policies returns copies of the policies in evaluation order.
func (s *Set) Policies() []*Policy {
	result := make([]*Policy, len(s.policies))
	for index, policy := range s.policies {
		result[index] = policy.Clone()
	}
	return result
}

// setDocument is the persisted form of a Set.
type setDocument struct {
	Policies []*Policy `json:"policies"`
}

func (s *Set) document() setDocument {
	return setDocument{Policies: s.Policies()}
}

func setFromDocument(document setDocument) *Set {
	set := &Set{}
	for _, policy := range document.Policies {
		if policy != nil {
			set.Add(policy)
		}
	}
	return set
}
