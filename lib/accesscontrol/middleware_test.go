// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package accesscontrol

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/permission"
	"github.com/bureau-foundation/nexus/lib/policy"
	"github.com/bureau-foundation/nexus/lib/role"
	"github.com/bureau-foundation/nexus/lib/testutil"
)

// echo replies to the sender with the same content.
func echo(_ context.Context, msg *message.Message) (*message.Message, error) {
	return message.New(msg.RecipientID, msg.SenderID, msg.Content), nil
}

func newTestMiddleware(t *testing.T, service *Service, strict bool) *Middleware {
	t.Helper()
	middleware, err := service.NewMiddleware(MiddlewareConfig{Strict: strict, Logger: testutil.Logger(t)})
	if err != nil {
		t.Fatalf("NewMiddleware: %v", err)
	}
	return middleware
}

func TestNewMiddlewareRejectsBadExemptPath(t *testing.T) {
	service, _, _ := newTestService(t, Config{})
	_, err := service.NewMiddleware(MiddlewareConfig{ExemptPaths: []string{"no-colon"}})
	if !errors.Is(err, message.ErrInvalidPathPattern) {
		t.Errorf("NewMiddleware error = %v, want ErrInvalidPathPattern", err)
	}
}

func TestCheckMessage(t *testing.T) {
	service, _, _ := newTestService(t, Config{})
	service.Grant("planner", permission.MustParse("message:create:executor"), "", 0)
	middleware := newTestMiddleware(t, service, true)

	tests := []struct {
		name      string
		sender    string
		recipient string
		allowed   bool
		source    Source
	}{
		{"granted recipient", "planner", "executor", true, SourceACL},
		{"other recipient", "planner", "reviewer", false, SourceNone},
		{"exempt sender", "user_agent", "reviewer", true, SourceExempt},
		{"exempt recipient", "stranger", "verification_agent", true, SourceExempt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := middleware.CheckMessage(context.Background(), message.New(tt.sender, tt.recipient, "hi"))
			if decision.Allowed != tt.allowed || decision.Source != tt.source {
				t.Errorf("CheckMessage = %+v, want allowed=%v source=%s", decision, tt.allowed, tt.source)
			}
		})
	}
}

func TestCheckMessageExposesMetadata(t *testing.T) {
	service, _, _ := newTestService(t, Config{})
	err := service.Policies().AddPolicy(&policy.Policy{
		Name:       "json_only",
		Effect:     policy.Allow,
		Conditions: map[string]any{"message_metadata.content_type": "application/json"},
	}, policy.ResourceLayer("message"))
	if err != nil {
		t.Fatalf("AddPolicy: %v", err)
	}
	middleware := newTestMiddleware(t, service, true)

	msg := message.New("planner", "executor", "{}")
	if middleware.CheckMessage(context.Background(), msg).Allowed {
		t.Error("text/plain message allowed")
	}
	msg.ContentType = "application/json"
	if !middleware.CheckMessage(context.Background(), msg).Allowed {
		t.Error("application/json message denied")
	}
}

func TestWrapStrict(t *testing.T) {
	service, _, recorder := newTestService(t, Config{})
	service.Grant("planner", permission.MustParse("message:create:executor"), "", 0)
	handler := newTestMiddleware(t, service, true).Wrap(echo)

	// executor may not answer planner, so the response is dropped too.
	response, err := handler(context.Background(), message.New("planner", "executor", "run"))
	if err != nil || response != nil {
		t.Errorf("denied response = %v, %v; want nil, nil", response, err)
	}
	service.Grant("executor", permission.MustParse("message:create:planner"), "", 0)
	response, err = handler(context.Background(), message.New("planner", "executor", "run"))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if response == nil || response.Content != "run" {
		t.Errorf("response = %v, want echo", response)
	}

	response, err = handler(context.Background(), message.New("intruder", "executor", "run"))
	if err != nil || response != nil {
		t.Errorf("intruder response = %v, %v; want nil, nil", response, err)
	}
	if denied := recorder.Denied(); len(denied) != 2 {
		t.Errorf("denied events = %d, want 2", len(denied))
	}
}

func TestStrictDenialsLogAtError(t *testing.T) {
	var output bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&output, nil))
	service, _, _ := newTestService(t, Config{Logger: logger})

	middleware, err := service.NewMiddleware(MiddlewareConfig{Strict: true, Logger: logger})
	if err != nil {
		t.Fatalf("NewMiddleware: %v", err)
	}
	called := false
	handler := middleware.Wrap(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		called = true
		return echo(ctx, msg)
	})
	if response, err := handler(context.Background(), message.New("intruder", "executor", "run")); err != nil || response != nil {
		t.Errorf("handler = %v, %v; want nil, nil", response, err)
	}
	if called {
		t.Error("strict middleware passed an unauthorized message")
	}
	if !strings.Contains(output.String(), `level=ERROR msg="access denied, message dropped"`) {
		t.Errorf("message drop log = %q, want level=ERROR", output.String())
	}

	output.Reset()
	tool := service.WrapTool("search", true, func(context.Context, string, map[string]any) (any, error) {
		return nil, nil
	})
	if _, err := tool(context.Background(), "stranger", nil); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("tool error = %v, want ErrAccessDenied", err)
	}
	if !strings.Contains(output.String(), `level=ERROR msg="tool access denied"`) {
		t.Errorf("tool denial log = %q, want level=ERROR", output.String())
	}
}

func TestWrapLenient(t *testing.T) {
	service, _, _ := newTestService(t, Config{})
	called := false
	handler := newTestMiddleware(t, service, false).Wrap(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		called = true
		return echo(ctx, msg)
	})
	response, err := handler(context.Background(), message.New("intruder", "executor", "run"))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !called || response == nil {
		t.Errorf("lenient mode blocked the message: called=%v response=%v", called, response)
	}
}

func TestEnrich(t *testing.T) {
	service, _, _ := newTestService(t, Config{})
	assignRole(t, service, "planner", role.Agent)
	service.Grant("planner", permission.MustParse("message:create:executor"), "", 0)
	service.Grant("planner", permission.MustParse("message:read:reviewer"), "", 0)
	middleware := newTestMiddleware(t, service, true)

	original := message.New("planner", "executor", "run")
	enriched := middleware.Enrich(original)
	if _, present := original.MetadataValue(message.MetadataRoles); present {
		t.Error("Enrich mutated its argument")
	}
	if got := enriched.Metadata[message.MetadataRoles]; !reflect.DeepEqual(got, []string{role.Agent}) {
		t.Errorf("roles = %v", got)
	}
	if got := enriched.Metadata[message.MetadataPermissions]; !reflect.DeepEqual(got, []string{"message:create:executor"}) {
		t.Errorf("permissions = %v", got)
	}

	stranger := middleware.Enrich(message.New("stranger", "executor", "hi"))
	if got := stranger.Metadata[message.MetadataRoles]; !reflect.DeepEqual(got, []string{}) {
		t.Errorf("stranger roles = %#v, want empty", got)
	}

	preset := message.New("planner", "executor", "run")
	preset.SetMetadata(message.MetadataPermissions, []string{"custom"})
	if got := middleware.Enrich(preset).Metadata[message.MetadataPermissions]; !reflect.DeepEqual(got, []string{"custom"}) {
		t.Errorf("preset permissions overwritten: %v", got)
	}
}
