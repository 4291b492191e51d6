// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMessage is returned for messages missing a sender or
// recipient, or that fail to decode.
var ErrInvalidMessage = errors.New("message: invalid message")

// DefaultContentType is used when a message does not name one.
const DefaultContentType = "text/plain"

// Metadata keys written by the security layer.
const (
	MetadataAuthToken   = "auth_token"
	MetadataRoles       = "roles"
	MetadataPermissions = "permissions"
)

// Message is one agent-to-agent message.
type Message struct {
	MessageID   string         `json:"message_id"`
	SenderID    string         `json:"sender_id"`
	RecipientID string         `json:"recipient_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Content     any            `json:"content"`
	ContentType string         `json:"content_type"`
	Role        string         `json:"role,omitempty"`
	Metadata    map[string]any `json:"metadata"`

	// Signature is the hex HMAC over Canonical. Empty when unsigned.
	Signature string `json:"signature,omitempty"`

	// SignatureMetadata identifies the key and algorithm behind
	// Signature. It is covered by the signature.
	SignatureMetadata *SignatureMetadata `json:"signature_metadata,omitempty"`
}

// SignatureMetadata describes how a message was signed.
type SignatureMetadata struct {
	KeyID     string  `json:"key_id"`
	Algorithm string  `json:"algorithm"`
	Timestamp float64 `json:"timestamp"`
}

// New returns a message with a fresh id and the default content type.
// The timestamp is left zero for the sender to stamp.
func New(senderID, recipientID string, content any) *Message {
	return &Message{
		MessageID:   uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		ContentType: DefaultContentType,
		Metadata:    map[string]any{},
	}
}

// Validate reports ErrInvalidMessage when sender or recipient is empty.
func (m *Message) Validate() error {
	if m.SenderID == "" {
		return fmt.Errorf("%w: empty sender id", ErrInvalidMessage)
	}
	if m.RecipientID == "" {
		return fmt.Errorf("%w: empty recipient id", ErrInvalidMessage)
	}
	return nil
}

// Clone returns a copy with its own metadata map and signature block.
// Content and nested metadata values are shared.
func (m *Message) Clone() *Message {
	clone := *m
	clone.Metadata = maps.Clone(m.Metadata)
	if m.SignatureMetadata != nil {
		signature := *m.SignatureMetadata
		clone.SignatureMetadata = &signature
	}
	return &clone
}

// MetadataValue returns a metadata entry.
func (m *Message) MetadataValue(key string) (any, bool) {
	value, exists := m.Metadata[key]
	return value, exists
}

// MetadataString returns a metadata entry when it is a string.
func (m *Message) MetadataString(key string) string {
	value, _ := m.Metadata[key].(string)
	return value
}

// SetMetadata sets a metadata entry, allocating the map if needed.
func (m *Message) SetMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	m.Metadata[key] = value
}

// Path returns "sender:recipient".
func (m *Message) Path() string {
	return m.SenderID + ":" + m.RecipientID
}

// String summarizes the message for logs, truncating content.
func (m *Message) String() string {
	content := fmt.Sprint(m.Content)
	if len(content) > 50 {
		content = content[:50] + "..."
	}
	return fmt.Sprintf("message %s from %s to %s (%s): %s", m.MessageID, m.SenderID, m.RecipientID, m.ContentType, content)
}

// Encode returns the wire form.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("message: encoding %s: %w", m.MessageID, err)
	}
	return data, nil
}

// Decode parses the wire form and validates it.
func Decode(data []byte) (*Message, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var decoded Message
	if err := decoder.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if decoded.Metadata == nil {
		decoded.Metadata = map[string]any{}
	}
	if err := decoded.Validate(); err != nil {
		return nil, err
	}
	return &decoded, nil
}
