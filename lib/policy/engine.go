// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Layer name prefixes accepted by Engine.AddPolicy.
const (
	LayerDefault  = "default"
	layerEntity   = "entity:"
	layerResource = "resource:"
	layerAction   = "action:"
)

// EntityLayer, ResourceLayer and ActionLayer build layer names.
func EntityLayer(entityID string) string       { return layerEntity + entityID }
func ResourceLayer(resourceType string) string { return layerResource + resourceType }
func ActionLayer(action string) string         { return layerAction + action }

// Result is the outcome of Engine.Evaluate.
type Result struct {
	Effect Effect

	// Reason names the layer that decided ("Entity-specific policy for
	// planner", "Default policy"). Empty when Undetermined.
	Reason string

	// Policy is the name of the deciding policy. Empty when
	// Undetermined.
	Policy string
}

// Allowed reports whether the result is an explicit allow.
func (r Result) Allowed() bool {
	return r.Effect == Allow
}

// Engine layers entity, resource, action, and default policy sets.
// Safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	defaults  *Set
	entities  map[string]*Set
	resources map[string]*Set
	actions   map[string]*Set
}

// NewEngine returns an engine with no policies.
func NewEngine() *Engine {
	return &Engine{
		defaults:  &Set{},
		entities:  make(map[string]*Set),
		resources: make(map[string]*Set),
		actions:   make(map[string]*Set),
	}
}

// AddPolicy adds a copy of policy to the named layer: "default",
// "entity:<id>", "resource:<type>", or "action:<action>".
func (e *Engine) AddPolicy(policy *Policy, layer string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, err := e.layerLocked(layer, true)
	if err != nil {
		return err
	}
	set.Add(policy)
	return nil
}

// RemovePolicy deletes the named policy from a layer.
func (e *Engine) RemovePolicy(name, layer string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, err := e.layerLocked(layer, false)
	if err != nil {
		return err
	}
	if set == nil {
		return fmt.Errorf("%w: %q in %s", ErrPolicyNotFound, name, layer)
	}
	return set.Remove(name)
}

// Policy returns a copy of the named policy from a layer.
func (e *Engine) Policy(name, layer string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set, err := e.layerLocked(layer, false)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, fmt.Errorf("%w: %q in %s", ErrPolicyNotFound, name, layer)
	}
	return set.Get(name)
}

// layerLocked resolves a layer name. When create is false a missing
// keyed layer returns (nil, nil). Caller holds mu.
func (e *Engine) layerLocked(layer string, create bool) (*Set, error) {
	if layer == LayerDefault {
		return e.defaults, nil
	}
	var table map[string]*Set
	var key string
	switch {
	case strings.HasPrefix(layer, layerEntity):
		table, key = e.entities, strings.TrimPrefix(layer, layerEntity)
	case strings.HasPrefix(layer, layerResource):
		table, key = e.resources, strings.TrimPrefix(layer, layerResource)
	case strings.HasPrefix(layer, layerAction):
		table, key = e.actions, strings.TrimPrefix(layer, layerAction)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicySet, layer)
	}
	set, exists := table[key]
	if !exists && create {
		set = &Set{}
		table[key] = set
	}
	return set, nil
}

// Evaluate checks the entity, resource, action, and default layers in
// that order. The first layer producing allow or deny decides.
func (e *Engine) Evaluate(ctx *Context) Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ctx.EntityID != "" {
		if set, exists := e.entities[ctx.EntityID]; exists {
			if effect, policy := set.Evaluate(ctx); policy != nil {
				return Result{effect, "Entity-specific policy for " + ctx.EntityID, policy.Name}
			}
		}
	}
	if ctx.ResourceType != "" {
		if set, exists := e.resources[ctx.ResourceType]; exists {
			if effect, policy := set.Evaluate(ctx); policy != nil {
				return Result{effect, "Resource-specific policy for " + ctx.ResourceType, policy.Name}
			}
		}
	}
	if ctx.Action != "" {
		if set, exists := e.actions[ctx.Action]; exists {
			if effect, policy := set.Evaluate(ctx); policy != nil {
				return Result{effect, "Action-specific policy for " + ctx.Action, policy.Name}
			}
		}
	}
	if effect, policy := e.defaults.Evaluate(ctx); policy != nil {
		return Result{effect, "Default policy", policy.Name}
	}
	return Result{Effect: Undetermined}
}

// IsAllowed reports whether Evaluate yields an explicit allow.
func (e *Engine) IsAllowed(ctx *Context) bool {
	return e.Evaluate(ctx).Allowed()
}

// Why renders the decision for ctx as a sentence.
func (e *Engine) Why(ctx *Context) string {
	result := e.Evaluate(ctx)
	switch result.Effect {
	case Allow:
		return "Access allowed: " + result.Reason
	case Deny:
		return "Access denied: " + result.Reason
	default:
		return "No applicable policy found. Access is denied by default."
	}
}

// Placement is a policy together with the layer that holds it.
type Placement struct {
	Layer  string  `json:"layer"`
	Policy *Policy `json:"policy"`
}

// Policies lists every policy with its layer: default first, then
// entity, resource, and action layers in key order.
func (e *Engine) Policies() []Placement {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var result []Placement
	appendSet := func(layer string, set *Set) {
		for _, policy := range set.Policies() {
			result = append(result, Placement{Layer: layer, Policy: policy})
		}
	}
	appendSet(LayerDefault, e.defaults)
	for _, key := range sortedKeys(e.entities) {
		appendSet(EntityLayer(key), e.entities[key])
	}
	for _, key := range sortedKeys(e.resources) {
		appendSet(ResourceLayer(key), e.resources[key])
	}
	for _, key := range sortedKeys(e.actions) {
		appendSet(ActionLayer(key), e.actions[key])
	}
	return result
}

// Document is the persisted form of an Engine (policies.json).
type Document struct {
	DefaultPolicies  setDocument            `json:"default_policies"`
	ResourcePolicies map[string]setDocument `json:"resource_policies"`
	ActionPolicies   map[string]setDocument `json:"action_policies"`
	EntityPolicies   map[string]setDocument `json:"entity_policies"`
}

// Snapshot returns the engine's persisted form.
func (e *Engine) Snapshot() Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Document{
		DefaultPolicies:  e.defaults.document(),
		ResourcePolicies: documents(e.resources),
		ActionPolicies:   documents(e.actions),
		EntityPolicies:   documents(e.entities),
	}
}

// Restore replaces every layer with the contents of document.
func (e *Engine) Restore(document Document) {
	defaults := setFromDocument(document.DefaultPolicies)
	resources := sets(document.ResourcePolicies)
	actions := sets(document.ActionPolicies)
	entities := sets(document.EntityPolicies)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults = defaults
	e.resources = resources
	e.actions = actions
	e.entities = entities
}

func documents(table map[string]*Set) map[string]setDocument {
	result := make(map[string]setDocument, len(table))
	for key, set := range table {
		result[key] = set.document()
	}
	return result
}

func sets(table map[string]setDocument) map[string]*Set {
	result := make(map[string]*Set, len(table))
	for key, document := range table {
		result[key] = setFromDocument(document)
	}
	return result
}

func sortedKeys(table map[string]*Set) []string {
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
