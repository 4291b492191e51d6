// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msgrule

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/policy"
)

var (
	// ErrUnknownKind is returned by Build for a kind not in the registry.
	ErrUnknownKind = errors.New("msgrule: unknown rule kind")

	// ErrInvalidParams is returned by Build when a rule's parameters are
	// missing or have the wrong type.
	ErrInvalidParams = errors.New("msgrule: invalid rule parameters")

	// ErrRejected wraps every rule failure returned by Rule.Check.
	ErrRejected = errors.New("msgrule: message rejected")
)

// Rule kinds.
const (
	KindRequiredMetadata = "required_metadata"
	KindContentType      = "content_type"
	KindMaxContentBytes  = "max_content_bytes"
	KindSenderPattern    = "sender_pattern"
)

// RuleConfig is one configured rule.
type RuleConfig struct {
	Kind   string         `yaml:"kind" json:"kind"`
	Params map[string]any `yaml:"params" json:"params"`
}

// Rule checks one property of a message.
type Rule interface {
	// Kind returns the registry tag the rule was built from.
	Kind() string

	// Check returns an error wrapping ErrRejected when msg fails.
	Check(msg *message.Message) error
}

type constructor func(params map[string]any) (Rule, error)

var registry = map[string]constructor{
	KindRequiredMetadata: newRequiredMetadata,
	KindContentType:      newContentType,
	KindMaxContentBytes:  newMaxContentBytes,
	KindSenderPattern:    newSenderPattern,
}

// Kinds lists the registered rule kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs the rule config describes.
func Build(config RuleConfig) (Rule, error) {
	construct, exists := registry[config.Kind]
	if !exists {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownKind, config.Kind, Kinds())
	}
	rule, err := construct(config.Params)
	if err != nil {
		return nil, fmt.Errorf("msgrule: building %s: %w", config.Kind, err)
	}
	return rule, nil
}

// BuildAll constructs every rule, failing on the first bad entry.
func BuildAll(configs []RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(configs))
	for index, config := range configs {
		rule, err := Build(config)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", index, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

type requiredMetadata struct {
	keys []string
}

func newRequiredMetadata(params map[string]any) (Rule, error) {
	keys, err := stringList(params, "keys")
	if err != nil {
		return nil, err
	}
	return &requiredMetadata{keys: keys}, nil
}

func (r *requiredMetadata) Kind() string { return KindRequiredMetadata }

func (r *requiredMetadata) Check(msg *message.Message) error {
	for _, key := range r.keys {
		if value, present := msg.MetadataValue(key); !present || value == nil {
			return fmt.Errorf("%w: metadata %q missing", ErrRejected, key)
		}
	}
	return nil
}

type contentType struct {
	allowed []string
}

func newContentType(params map[string]any) (Rule, error) {
	allowed, err := stringList(params, "allowed")
	if err != nil {
		return nil, err
	}
	return &contentType{allowed: allowed}, nil
}

func (r *contentType) Kind() string { return KindContentType }

func (r *contentType) Check(msg *message.Message) error {
	if slices.Contains(r.allowed, msg.ContentType) {
		return nil
	}
	return fmt.Errorf("%w: content type %q not in %v", ErrRejected, msg.ContentType, r.allowed)
}

type maxContentBytes struct {
	limit int
}

func newMaxContentBytes(params map[string]any) (Rule, error) {
	limit, err := positiveInt(params, "limit")
	if err != nil {
		return nil, err
	}
	return &maxContentBytes{limit: limit}, nil
}

func (r *maxContentBytes) Kind() string { return KindMaxContentBytes }

// Check measures the JSON encoding of the content, so a string counts
// its quotes and escapes.
func (r *maxContentBytes) Check(msg *message.Message) error {
	encoded, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("%w: content not encodable: %v", ErrRejected, err)
	}
	if len(encoded) > r.limit {
		return fmt.Errorf("%w: content is %d bytes, limit %d", ErrRejected, len(encoded), r.limit)
	}
	return nil
}

type senderPattern struct {
	patterns []string
}

func newSenderPattern(params map[string]any) (Rule, error) {
	patterns, err := stringList(params, "patterns")
	if err != nil {
		return nil, err
	}
	return &senderPattern{patterns: patterns}, nil
}

func (r *senderPattern) Kind() string { return KindSenderPattern }

func (r *senderPattern) Check(msg *message.Message) error {
	if policy.MatchAny(msg.SenderID, r.patterns) {
		return nil
	}
	return fmt.Errorf("%w: sender %q matches none of %v", ErrRejected, msg.SenderID, r.patterns)
}

// stringList reads a non-empty list of strings. YAML and JSON both
// decode lists as []any.
func stringList(params map[string]any, key string) ([]string, error) {
	raw, present := params[key]
	if !present {
		return nil, fmt.Errorf("%w: %q is required", ErrInvalidParams, key)
	}
	var values []string
	switch typed := raw.(type) {
	case []string:
		values = slices.Clone(typed)
	case []any:
		for _, item := range typed {
			value, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q entries must be strings, got %T", ErrInvalidParams, key, item)
			}
			values = append(values, value)
		}
	case string:
		values = []string{typed}
	default:
		return nil, fmt.Errorf("%w: %q must be a list of strings, got %T", ErrInvalidParams, key, raw)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %q is empty", ErrInvalidParams, key)
	}
	return values, nil
}

// positiveInt reads an integer parameter greater than zero. JSON
// numbers arrive as float64, YAML integers as int.
func positiveInt(params map[string]any, key string) (int, error) {
	raw, present := params[key]
	if !present {
		return 0, fmt.Errorf("%w: %q is required", ErrInvalidParams, key)
	}
	var value int
	switch typed := raw.(type) {
	case int:
		value = typed
	case int64:
		value = int(typed)
	case uint64:
		value = int(typed)
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("%w: %q must be an integer, got %v", ErrInvalidParams, key, typed)
		}
		value = int(typed)
	default:
		return 0, fmt.Errorf("%w: %q must be an integer, got %T", ErrInvalidParams, key, raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive, got %d", ErrInvalidParams, key, value)
	}
	return value, nil
}
