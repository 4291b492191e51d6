// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Permission
	}{
		{"agent:read", Permission{ResourceAgent, ActionRead, "*"}},
		{"message:create:planner", Permission{ResourceMessage, ActionCreate, "planner"}},
		{"*:*", FullAccess},
		{"any:any", FullAccess},
		{"ANY:Manage:x", Permission{ResourceAny, ActionManage, "x"}},
		{"tool:execute:", Permission{ResourceTool, ActionExecute, "*"}},

		// Unknown components degrade to Any.
		{"spaceship:read", Permission{ResourceAny, ActionRead, "*"}},
		{"data:fly:db", Permission{ResourceData, ActionAny, "db"}},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestParseWarnsOnDegradation(t *testing.T) {
	var output bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&output, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	if _, err := Parse("agent:read:x"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if output.Len() != 0 {
		t.Errorf("known permission logged %q", output.String())
	}

	if _, err := Parse("spaceship:fly"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	logged := output.String()
	for _, want := range []string{
		`level=WARN msg="unknown resource type, using any" resource_type=spaceship`,
		`level=WARN msg="unknown action, using any" action=fly`,
	} {
		if !strings.Contains(logged, want) {
			t.Errorf("log = %q, want %q", logged, want)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{"", "agent", "a:b:c:d", "message:create:x:y"} {
		_, err := Parse(input)
		if !errors.Is(err, ErrInvalidPermission) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidPermission", input, err)
		}
	}
}

func TestParseStrict(t *testing.T) {
	if _, err := ParseStrict("tool:execute:search"); err != nil {
		t.Fatalf("ParseStrict: %v", err)
	}
	for _, input := range []string{"spaceship:read", "data:fly", "agent"} {
		if _, err := ParseStrict(input); !errors.Is(err, ErrInvalidPermission) {
			t.Errorf("ParseStrict(%q) error = %v, want ErrInvalidPermission", input, err)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, input := range []string{"agent:read:*", "*:*:*", "message:create:planner", "system:manage:*"} {
		parsed := MustParse(input)
		if parsed.String() != input {
			t.Errorf("String() = %q, want %q", parsed.String(), input)
		}
	}
	if got := New(ResourceData, ActionRead, "").String(); got != "data:read:*" {
		t.Errorf("default instance String() = %q, want data:read:*", got)
	}
}

func TestImplies(t *testing.T) {
	tests := []struct {
		holder string
		wanted string
		want   bool
	}{
		{"agent:read:*", "agent:read:planner", true},
		{"agent:read:planner", "agent:read:planner", true},
		{"agent:read:planner", "agent:read:*", false},
		{"agent:read:planner", "agent:read:coder", false},
		{"agent:*:*", "agent:manage:x", true},
		{"*:read:*", "config:read:db", true},
		{"*:read:*", "config:update:db", false},
		{"tool:execute", "agent:execute", false},
		{"*:*:db", "config:update:db", true},
		{"*:*:db", "config:update:cache", false},

		// Instances match exactly: no prefix semantics.
		{"data:read:db", "data:read:db-replica", false},
	}

	for _, tt := range tests {
		got := MustParse(tt.holder).Implies(MustParse(tt.wanted))
		if got != tt.want {
			t.Errorf("%s implies %s = %v, want %v", tt.holder, tt.wanted, got, tt.want)
		}
	}
}

func TestWildcardSubsumption(t *testing.T) {
	for _, resourceType := range append([]ResourceType{ResourceAny}, ResourceTypes...) {
		for _, action := range append([]Action{ActionAny}, Actions...) {
			target := New(resourceType, action, "instance-7")
			if !FullAccess.Implies(target) {
				t.Errorf("FullAccess does not imply %s", target)
			}
			typeWide := New(resourceType, ActionAny, AnyInstance)
			if !typeWide.Implies(target) {
				t.Errorf("%s does not imply %s", typeWide, target)
			}
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var p Permission
	if err := p.UnmarshalText([]byte("workflow:execute:nightly")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if p != New(ResourceWorkflow, ActionExecute, "nightly") {
		t.Errorf("UnmarshalText = %+v", p)
	}
	if err := p.UnmarshalText([]byte("bogus")); !errors.Is(err, ErrInvalidPermission) {
		t.Errorf("UnmarshalText(bogus) error = %v, want ErrInvalidPermission", err)
	}
}
