// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package accesscontrol

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/nexus/lib/policy"
	"github.com/bureau-foundation/nexus/lib/role"
)

func TestCheckToolAccess(t *testing.T) {
	service, _, recorder := newTestService(t, Config{})
	assignRole(t, service, "coder", role.Agent)

	if !service.CheckToolAccess(context.Background(), "coder", "search", nil).Allowed {
		t.Error("agent role cannot execute tools")
	}
	if service.CheckToolAccess(context.Background(), "stranger", "search", nil).Allowed {
		t.Error("stranger executed a tool")
	}
	events := recorder.Events()
	if len(events) != 2 || events[0].Resource != "tool:search" || events[0].Action != "execute" {
		t.Errorf("events = %+v", events)
	}
}

func TestToolParameterConditions(t *testing.T) {
	service, _, _ := newTestService(t, Config{})
	err := service.Policies().AddPolicy(&policy.Policy{
		Name:       "shell_readonly",
		Effect:     policy.Allow,
		Conditions: map[string]any{"additional_context.parameters.mode": []any{"read", "list"}},
	}, policy.ResourceLayer("tool"))
	if err != nil {
		t.Fatalf("AddPolicy: %v", err)
	}
	tests := []struct {
		mode any
		want bool
	}{
		{"read", true},
		{"list", true},
		{"write", false},
		{nil, false},
	}
	for _, tt := range tests {
		parameters := map[string]any{}
		if tt.mode != nil {
			parameters["mode"] = tt.mode
		}
		if got := service.CheckToolAccess(context.Background(), "coder", "shell", parameters).Allowed; got != tt.want {
			t.Errorf("mode %v: allowed = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestWrapTool(t *testing.T) {
	service, _, _ := newTestService(t, Config{})
	assignRole(t, service, "coder", role.Agent)
	calls := 0
	tool := func(_ context.Context, agentID string, parameters map[string]any) (any, error) {
		calls++
		return agentID + " ran", nil
	}

	strict := service.WrapTool("search", true, tool)
	result, err := strict(context.Background(), "coder", nil)
	if err != nil || result != "coder ran" {
		t.Errorf("allowed call = %v, %v", result, err)
	}
	result, err = strict(context.Background(), "stranger", nil)
	if !errors.Is(err, ErrAccessDenied) || result != nil {
		t.Errorf("denied strict call = %v, %v; want ErrAccessDenied", result, err)
	}
	if calls != 1 {
		t.Errorf("tool ran %d times under strict mode, want 1", calls)
	}

	lenient := service.WrapTool("search", false, tool)
	if _, err := lenient(context.Background(), "stranger", nil); err != nil {
		t.Errorf("lenient call: %v", err)
	}
	if calls != 2 {
		t.Errorf("tool ran %d times, want 2", calls)
	}
}
