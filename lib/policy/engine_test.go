// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func mustAdd(t *testing.T, engine *Engine, policy *Policy, layer string) {
	t.Helper()
	if err := engine.AddPolicy(policy, layer); err != nil {
		t.Fatalf("AddPolicy(%s, %s): %v", policy.Name, layer, err)
	}
}

func TestScenarioConfigUpdate(t *testing.T) {
	engine := NewEngine()
	mustAdd(t, engine, &Policy{
		Name:             "deny-config-update",
		Effect:           Deny,
		ResourcePatterns: []string{"config:*"},
		ActionPatterns:   []string{"update"},
		Priority:         500,
	}, LayerDefault)
	mustAdd(t, engine, &Policy{
		Name:           "allow-read",
		Effect:         Allow,
		ActionPatterns: []string{"read"},
		Priority:       100,
	}, LayerDefault)

	update := &Context{EntityID: "x", ResourceType: "config", ResourceID: "db", Action: "update"}
	if engine.IsAllowed(update) {
		t.Error("config update should be denied")
	}
	if result := engine.Evaluate(update); result.Effect != Deny || result.Policy != "deny-config-update" {
		t.Errorf("Evaluate(update) = %+v", result)
	}

	read := &Context{EntityID: "x", ResourceType: "config", ResourceID: "db", Action: "read"}
	if !engine.IsAllowed(read) {
		t.Error("config read should be allowed")
	}

	other := &Context{EntityID: "x", ResourceType: "data", ResourceID: "db", Action: "delete"}
	if result := engine.Evaluate(other); result.Effect != Undetermined || result.Reason != "" {
		t.Errorf("Evaluate(other) = %+v, want undetermined", result)
	}
}

func TestEntityLayerOverridesDefault(t *testing.T) {
	engine := NewEngine()
	mustAdd(t, engine, &Policy{Name: "default-deny-all", Effect: Deny, Priority: 1_000_000}, LayerDefault)
	mustAdd(t, engine, &Policy{Name: "planner-ok", Effect: Allow, Priority: -5}, EntityLayer("planner"))

	ctx := &Context{EntityID: "planner", ResourceType: "tool", ResourceID: "search", Action: "execute"}
	result := engine.Evaluate(ctx)
	if result.Effect != Allow {
		t.Fatalf("Effect = %v, want allow", result.Effect)
	}
	if result.Reason != "Entity-specific policy for planner" {
		t.Errorf("Reason = %q", result.Reason)
	}

	ctx.EntityID = "coder"
	if engine.IsAllowed(ctx) {
		t.Error("coder should fall through to the default deny")
	}
}

func TestLayerOrder(t *testing.T) {
	engine := NewEngine()
	mustAdd(t, engine, &Policy{Name: "resource", Effect: Deny}, ResourceLayer("tool"))
	mustAdd(t, engine, &Policy{Name: "action", Effect: Allow}, ActionLayer("execute"))
	mustAdd(t, engine, &Policy{Name: "default", Effect: Allow}, LayerDefault)

	ctx := &Context{EntityID: "a", ResourceType: "tool", ResourceID: "x", Action: "execute"}
	if result := engine.Evaluate(ctx); result.Policy != "resource" || result.Reason != "Resource-specific policy for tool" {
		t.Errorf("Evaluate = %+v, want resource layer", result)
	}

	ctx.ResourceType = "data"
	if result := engine.Evaluate(ctx); result.Policy != "action" || result.Reason != "Action-specific policy for execute" {
		t.Errorf("Evaluate = %+v, want action layer", result)
	}

	ctx.Action = "read"
	if result := engine.Evaluate(ctx); result.Policy != "default" || result.Reason != "Default policy" {
		t.Errorf("Evaluate = %+v, want default layer", result)
	}
}

func TestWhy(t *testing.T) {
	engine := NewEngine()
	ctx := &Context{EntityID: "a", ResourceType: "data", ResourceID: "x", Action: "read"}
	if got := engine.Why(ctx); got != "No applicable policy found. Access is denied by default." {
		t.Errorf("Why (empty) = %q", got)
	}
	mustAdd(t, engine, &Policy{Name: "r", Effect: Allow, ActionPatterns: []string{"read"}}, LayerDefault)
	if got := engine.Why(ctx); got != "Access allowed: Default policy" {
		t.Errorf("Why (allow) = %q", got)
	}
	mustAdd(t, engine, &Policy{Name: "d", Effect: Deny}, EntityLayer("a"))
	if got := engine.Why(ctx); got != "Access denied: Entity-specific policy for a" {
		t.Errorf("Why (deny) = %q", got)
	}
}

func TestUnknownLayer(t *testing.T) {
	engine := NewEngine()
	err := engine.AddPolicy(&Policy{Name: "p"}, "tenant:acme")
	if !errors.Is(err, ErrUnknownPolicySet) {
		t.Errorf("AddPolicy error = %v, want ErrUnknownPolicySet", err)
	}
	if err := engine.RemovePolicy("p", EntityLayer("nobody")); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("RemovePolicy error = %v, want ErrPolicyNotFound", err)
	}
	if _, err := engine.Policy("p", "bogus"); !errors.Is(err, ErrUnknownPolicySet) {
		t.Errorf("Policy error = %v, want ErrUnknownPolicySet", err)
	}
}

func TestBasicPolicies(t *testing.T) {
	engine := NewEngine()
	engine.AddBasicPolicies()

	tests := []struct {
		ctx  Context
		want bool
	}{
		{Context{EntityID: "admin_root", ResourceType: "config", ResourceID: "db", Action: "delete"}, true},
		{Context{EntityID: "service_mailer", ResourceType: "system", ResourceID: "clock", Action: "execute"}, true},
		{Context{EntityID: "planner", ResourceType: "config", ResourceID: "db", Action: "update"}, false},
		{Context{EntityID: "planner", ResourceType: "data", ResourceID: "db", Action: "list"}, true},
		{Context{EntityID: "planner", ResourceType: "data", ResourceID: "db", Action: "create"}, false},
	}
	for _, tt := range tests {
		if got := engine.IsAllowed(&tt.ctx); got != tt.want {
			t.Errorf("IsAllowed(%s) = %v, want %v", tt.ctx.String(), got, tt.want)
		}
	}
	if got := len(engine.Policies()); got != 5 {
		t.Errorf("Policies() len = %d, want 5", got)
	}
}

func TestFileRoundTrip(t *testing.T) {
	engine := NewEngine()
	engine.AddBasicPolicies()
	mustAdd(t, engine, &Policy{
		Name:       "prod-only",
		Effect:     Allow,
		Conditions: map[string]any{"environment.tier": "prod"},
		Priority:   50,
	}, EntityLayer("planner"))

	path := filepath.Join(t.TempDir(), "policies.json")
	if err := SaveFile(path, engine.Snapshot()); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	document, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	restored := NewEngine()
	restored.Restore(document)

	ctx := &Context{EntityID: "planner", ResourceType: "data", ResourceID: "x", Action: "create", Environment: map[string]any{"tier": "prod"}}
	if !restored.IsAllowed(ctx) {
		t.Error("restored entity policy did not apply")
	}
	if got, want := len(restored.Policies()), 6; got != want {
		t.Errorf("restored policy count = %d, want %d", got, want)
	}
}

func TestParseJSONC(t *testing.T) {
	data := []byte(`{
		// Operators may annotate policy files.
		"default_policies": {
			"policies": [
				{"name": "reads", "effect": "allow", "action_patterns": ["read"], "priority": 10,},
			],
		},
	}`)
	document, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	engine := NewEngine()
	engine.Restore(document)
	if !engine.IsAllowed(&Context{EntityID: "a", ResourceType: "data", ResourceID: "b", Action: "read"}) {
		t.Error("parsed policy not applied")
	}
	placements := engine.Policies()
	if len(placements) != 1 || placements[0].Policy.EntityPatterns[0] != "*" {
		t.Errorf("defaults not normalized: %+v", placements)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile(absent) error = %v, want ErrNotExist", err)
	}
}
