// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authentication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/nexus/lib/audit"
	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/signing"
)

func newProcessor(t *testing.T, f *fixture, config ProcessorConfig) *Processor {
	t.Helper()
	config.Service = f.service
	config.Recorder = f.recorder
	processor, err := NewProcessor(config)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return processor
}

// echo answers every message with a reply from recipient to sender.
func echo(calls *int) message.Handler {
	return func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		*calls++
		return message.New(msg.RecipientID, msg.SenderID, "ack"), nil
	}
}

func TestNewProcessorValidation(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name   string
		config ProcessorConfig
		want   error
	}{
		{"bad mode", ProcessorConfig{Mode: "kerberos"}, ErrInvalidMode},
		{"no colon", ProcessorConfig{ExemptPaths: []string{"planner"}}, message.ErrInvalidPathPattern},
		{"three parts", ProcessorConfig{ExemptPaths: []string{"a:b:c"}}, message.ErrInvalidPathPattern},
		{"empty side", ProcessorConfig{ExemptPaths: []string{":b"}}, message.ErrInvalidPathPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Service = f.service
			if _, err := NewProcessor(tt.config); !errors.Is(err, tt.want) {
				t.Errorf("NewProcessor error = %v, want %v", err, tt.want)
			}
		})
	}
	processor := newProcessor(t, f, ProcessorConfig{})
	if processor.Mode() != ModeSignature {
		t.Errorf("default mode = %s, want signature", processor.Mode())
	}
}

func TestExempt(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name      string
		paths     []string
		sender    string
		recipient string
		want      bool
	}{
		{"default from verification agent", nil, "verification_agent", "executor", true},
		{"default to user agent", nil, "planner", "user_agent", true},
		{"default ordinary path", nil, "planner", "executor", false},
		{"explicit pair", []string{"planner:executor"}, "planner", "executor", true},
		{"explicit pair other direction", []string{"planner:executor"}, "executor", "planner", false},
		{"prefix glob", []string{"monitor_*:*"}, "monitor_cpu", "anyone", true},
		{"empty list exempts nothing", []string{}, "user_agent", "executor", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := newProcessor(t, f, ProcessorConfig{ExemptPaths: tt.paths})
			if got := processor.Exempt(message.New(tt.sender, tt.recipient, nil)); got != tt.want {
				t.Errorf("Exempt(%s:%s) = %v, want %v", tt.sender, tt.recipient, got, tt.want)
			}
		})
	}
}

func TestSignatureModeRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	processor := newProcessor(t, f, ProcessorConfig{Strict: true})
	ctx := context.Background()

	outbound, err := processor.Prepare(message.New("planner", "executor", "step 1"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if outbound.Signature == "" || outbound.SignatureMetadata == nil {
		t.Fatal("prepared message is unsigned")
	}

	calls := 0
	handler := processor.Middleware(echo(&calls))
	response, err := handler(ctx, outbound)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if response == nil || !f.service.Verify(response) {
		t.Error("response was not signed")
	}
}

func TestInboundLeavesResponseUnprepared(t *testing.T) {
	f := newFixture(t, nil)
	processor := newProcessor(t, f, ProcessorConfig{Strict: true})
	outbound, err := processor.Prepare(message.New("planner", "executor", "step 1"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	calls := 0
	response, err := processor.Inbound(echo(&calls))(context.Background(), outbound)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if calls != 1 || response == nil {
		t.Fatalf("calls = %d, response = %v", calls, response)
	}
	if response.Signature != "" || response.SignatureMetadata != nil {
		t.Error("Inbound signed the response")
	}

	calls = 0
	response, err = processor.Inbound(echo(&calls))(context.Background(), message.New("planner", "executor", "unsigned"))
	if err != nil || response != nil || calls != 0 {
		t.Errorf("unsigned message = %v, %v, calls %d; want dropped", response, err, calls)
	}
}

func TestSignatureModeStrictDrops(t *testing.T) {
	f := newFixture(t, nil)
	processor := newProcessor(t, f, ProcessorConfig{Strict: true})
	ctx := context.Background()

	signed, err := processor.Prepare(message.New("planner", "executor", "step 1"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	tampered := signed.Clone()
	tampered.Content = "step 666"

	tests := []struct {
		name string
		msg  *message.Message
		want error
	}{
		{"unsigned", message.New("planner", "executor", "x"), signing.ErrMissingSignature},
		{"tampered", tampered, ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := processor.Authenticate(ctx, tt.msg); !errors.Is(err, tt.want) {
				t.Errorf("Authenticate error = %v, want %v", err, tt.want)
			}
			calls := 0
			response, err := processor.Middleware(echo(&calls))(ctx, tt.msg)
			if response != nil || err != nil {
				t.Errorf("strict middleware = (%v, %v), want (nil, nil)", response, err)
			}
			if calls != 0 {
				t.Errorf("handler called %d times for a dropped message", calls)
			}
		})
	}

	denied := f.recorder.Denied()
	if len(denied) == 0 {
		t.Fatal("no denied authentication events recorded")
	}
	if denied[0].Kind != audit.KindAuthentication || denied[0].Resource != "planner:executor" {
		t.Errorf("denied event = %+v", denied[0])
	}
}

func TestLenientPassesUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	processor := newProcessor(t, f, ProcessorConfig{Strict: false})
	unsigned := message.New("planner", "executor", "x")

	var seen *message.Message
	handler := processor.Middleware(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		seen = msg
		return nil, nil
	})
	response, err := handler(context.Background(), unsigned)
	if err != nil || response != nil {
		t.Fatalf("handler = (%v, %v)", response, err)
	}
	if seen != unsigned {
		t.Error("lenient mode did not pass the original message to the handler")
	}
}

func TestExemptSkipsBothDirections(t *testing.T) {
	f := newFixture(t, nil)
	processor := newProcessor(t, f, ProcessorConfig{Strict: true})
	inbound := message.New("user_agent", "planner", "hello")

	calls := 0
	response, err := processor.Middleware(echo(&calls))(context.Background(), inbound)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if calls != 1 {
		t.Fatal("exempt message was dropped")
	}
	if response.Signature != "" {
		t.Error("reply to user_agent was signed")
	}
	events := f.recorder.Events()
	if len(events) != 1 || events[0].Source != "exempt" || !events[0].Allowed {
		t.Errorf("events = %+v", events)
	}
}

func TestTokenMode(t *testing.T) {
	f := newFixture(t, nil)
	processor := newProcessor(t, f, ProcessorConfig{Mode: ModeToken, Strict: true})
	ctx := context.Background()

	original := message.New("planner", "executor", "step 1")
	prepared, err := processor.Prepare(original)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if original.MetadataString(message.MetadataAuthToken) != "" {
		t.Error("Prepare modified its input")
	}
	tokenString := prepared.MetadataString(message.MetadataAuthToken)
	claims, valid := f.service.ValidateToken(tokenString)
	if !valid {
		t.Fatal("attached token does not validate")
	}
	if claims["msg_id"] != original.MessageID || claims["recipient"] != "executor" || claims.Subject() != "planner" {
		t.Errorf("claims = %v", claims)
	}
	if err := processor.Authenticate(ctx, prepared); err != nil {
		t.Errorf("Authenticate: %v", err)
	}

	spoofed := prepared.Clone()
	spoofed.SenderID = "intruder"

	expired := prepared.Clone()
	shortLived, err := f.service.IssueToken("planner", nil, time.Second)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	expired.SetMetadata(message.MetadataAuthToken, shortLived)

	tests := []struct {
		name  string
		msg   *message.Message
		after time.Duration
	}{
		{"no token", original, 0},
		{"garbage token", func() *message.Message {
			msg := original.Clone()
			msg.SetMetadata(message.MetadataAuthToken, "a.b.c")
			return msg
		}(), 0},
		{"subject is not sender", spoofed, 0},
		{"expired", expired, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Advance(tt.after)
			if err := processor.Authenticate(ctx, tt.msg); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Authenticate error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestTokenModeRequiredClaims(t *testing.T) {
	f := newFixture(t, nil)
	processor := newProcessor(t, f, ProcessorConfig{Mode: ModeToken, RequiredClaims: []string{"sub", "exp", "tenant"}})
	prepared, err := processor.Prepare(message.New("planner", "executor", "x"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := processor.Authenticate(context.Background(), prepared); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Authenticate without tenant error = %v, want ErrUnauthenticated", err)
	}

	withTenant, err := f.service.IssueToken("planner", map[string]any{"tenant": "acme"}, 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	prepared.SetMetadata(message.MetadataAuthToken, withTenant)
	if err := processor.Authenticate(context.Background(), prepared); err != nil {
		t.Errorf("Authenticate with tenant: %v", err)
	}
}
