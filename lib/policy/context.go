// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Context is one access request as seen by the policy engine.
type Context struct {
	EntityID        string         `json:"entity_id"`
	ResourceType    string         `json:"resource_type"`
	ResourceID      string         `json:"resource_id"`
	Action          string         `json:"action"`
	Environment     map[string]any `json:"environment,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	MessageMetadata map[string]any `json:"message_metadata,omitempty"`
	Additional      map[string]any `json:"additional_context,omitempty"`
}

// Resource returns the "type:id" string resource patterns match against.
func (c *Context) Resource() string {
	return c.ResourceType + ":" + c.ResourceID
}

// Value resolves a dotted path. The second result is false when any
// segment is missing.
func (c *Context) Value(path string) (any, bool) {
	segments := strings.Split(path, ".")
	current, ok := c.field(segments[0])
	if !ok {
		return nil, false
	}
	for _, segment := range segments[1:] {
		nested, isMap := current.(map[string]any)
		if !isMap {
			return nil, false
		}
		current, ok = nested[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (c *Context) field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return c.EntityID, true
	case "resource_type":
		return c.ResourceType, true
	case "resource_id":
		return c.ResourceID, true
	case "action":
		return c.Action, true
	case "timestamp":
		if c.Timestamp.IsZero() {
			return nil, true
		}
		return float64(c.Timestamp.UnixNano()) / float64(time.Second), true
	case "environment":
		return emptyIfNil(c.Environment), true
	case "message_metadata":
		return emptyIfNil(c.MessageMetadata), true
	case "additional_context":
		return emptyIfNil(c.Additional), true
	}
	return nil, false
}

func emptyIfNil(value map[string]any) map[string]any {
	if value == nil {
		return map[string]any{}
	}
	return value
}

// Matches reports whether every condition holds for c.
func (c *Context) Matches(conditions map[string]any) bool {
	for path, expected := range conditions {
		actual, _ := c.Value(path)
		if expected == "*" {
			if actual == nil {
				return false
			}
			continue
		}
		if options, isList := asList(expected); isList {
			if !containsValue(options, actual) {
				return false
			}
			continue
		}
		if !valuesEqual(actual, expected) {
			return false
		}
	}
	return true
}

// String renders the request for log lines and reasons.
func (c *Context) String() string {
	return fmt.Sprintf("%s %s on %s", c.EntityID, c.Action, c.Resource())
}

func asList(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		return typed, true
	case []string:
		result := make([]any, len(typed))
		for index, item := range typed {
			result[index] = item
		}
		return result, true
	}
	return nil, false
}

func containsValue(options []any, actual any) bool {
	for _, option := range options {
		if valuesEqual(actual, option) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if aNumber, ok := toFloat(a); ok {
		if bNumber, ok := toFloat(b); ok {
			return aNumber == bNumber
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(value any) (float64, bool) {
	switch number := value.(type) {
	case int:
		return float64(number), true
	case int32:
		return float64(number), true
	case int64:
		return float64(number), true
	case uint:
		return float64(number), true
	case uint32:
		return float64(number), true
	case uint64:
		return float64(number), true
	case float32:
		return float64(number), true
	case float64:
		return number, true
	case json.Number:
		parsed, err := number.Float64()
		return parsed, err == nil
	}
	return 0, false
}
