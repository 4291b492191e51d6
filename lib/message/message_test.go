// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	msg := New("planner", "executor", "run step 1")
	if msg.MessageID == "" {
		t.Error("MessageID empty")
	}
	if msg.ContentType != DefaultContentType {
		t.Errorf("ContentType = %q", msg.ContentType)
	}
	if err := msg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if msg.Path() != "planner:executor" {
		t.Errorf("Path = %q", msg.Path())
	}
}

func TestValidate(t *testing.T) {
	for _, msg := range []*Message{New("", "b", nil), New("a", "", nil)} {
		if err := msg.Validate(); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("Validate(%q→%q) error = %v, want ErrInvalidMessage", msg.SenderID, msg.RecipientID, err)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"sender_id":`,
		"missing sender": `{"recipient_id":"b"}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(input)); !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Decode error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestCanonicalStableAcrossWire(t *testing.T) {
	msg := New("planner", "executor", map[string]any{"step": 3, "ratio": 0.1, "z": "last", "a": "first"})
	msg.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	msg.SetMetadata("trace", "t-1")
	msg.SignatureMetadata = &SignatureMetadata{KeyID: "k1", Algorithm: "hmac-sha256", Timestamp: 1772366400.25}

	before, err := msg.Canonical()
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}

	wire, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	received, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	after, err := received.Canonical()
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("canonical form changed over the wire:\n%s\n%s", before, after)
	}
}

func TestCanonicalExcludesSignatureOnly(t *testing.T) {
	msg := New("a", "b", "x")
	msg.SignatureMetadata = &SignatureMetadata{KeyID: "k1", Algorithm: "hmac-sha256"}
	unsigned, err := msg.Canonical()
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	msg.Signature = "deadbeef"
	signed, err := msg.Canonical()
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if string(unsigned) != string(signed) {
		t.Error("Signature field leaked into canonical form")
	}
	if !strings.Contains(string(signed), `"signature_metadata":{"algorithm":"hmac-sha256"`) {
		t.Errorf("canonical form lacks sorted signature metadata: %s", signed)
	}
}

func TestCanonicalJSONSortsNestedKeys(t *testing.T) {
	got, err := CanonicalJSON([]byte(`{ "b": {"y": 1, "x": 2.50}, "a": [3, {"d": 1, "c": 2}] }`))
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"a":[3,{"c":2,"d":1}],"b":{"x":2.50,"y":1}}`
	if string(got) != want {
		t.Errorf("CanonicalJSON = %s, want %s", got, want)
	}
}

func TestClone(t *testing.T) {
	msg := New("a", "b", "x")
	msg.SetMetadata("k", "v")
	msg.SignatureMetadata = &SignatureMetadata{KeyID: "k1"}
	clone := msg.Clone()
	clone.SetMetadata("k", "changed")
	clone.SignatureMetadata.KeyID = "k2"
	if msg.MetadataString("k") != "v" || msg.SignatureMetadata.KeyID != "k1" {
		t.Error("Clone shares mutable state")
	}
}

func TestString(t *testing.T) {
	msg := New("a", "b", strings.Repeat("x", 80))
	if !strings.HasSuffix(msg.String(), "...") {
		t.Errorf("String did not truncate: %s", msg.String())
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, msg *Message) (*Message, error) {
				order = append(order, name)
				return next(ctx, msg)
			}
		}
	}
	handler := Chain(func(ctx context.Context, msg *Message) (*Message, error) {
		order = append(order, "handler")
		return nil, nil
	}, tag("outer"), tag("inner"))

	if _, err := handler(context.Background(), New("a", "b", "x")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := strings.Join(order, ","); got != "outer,inner,handler" {
		t.Errorf("order = %s", got)
	}
}

func TestPathSet(t *testing.T) {
	if _, err := ParsePathSet([]string{"a:b", "nope"}); !errors.Is(err, ErrInvalidPathPattern) {
		t.Errorf("ParsePathSet error = %v, want ErrInvalidPathPattern", err)
	}
	defaults, err := ParsePathSet(DefaultExemptPaths)
	if err != nil {
		t.Fatalf("ParsePathSet: %v", err)
	}
	if defaults.Len() != 4 {
		t.Errorf("Len = %d, want 4", defaults.Len())
	}
	tests := []struct {
		sender, recipient string
		want              bool
	}{
		{"verification_agent", "planner", true},
		{"planner", "verification_agent", true},
		{"user_agent", "planner", true},
		{"planner", "executor", false},
		{"user_agent_2", "planner", false},
	}
	for _, tt := range tests {
		if got := defaults.Match(New(tt.sender, tt.recipient, nil)); got != tt.want {
			t.Errorf("Match(%s:%s) = %v, want %v", tt.sender, tt.recipient, got, tt.want)
		}
	}
	var none *PathSet
	if none.Match(New("user_agent", "x", nil)) {
		t.Error("nil PathSet matched")
	}
}
