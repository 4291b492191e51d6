// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/nexus/lib/policy"
)

// ErrInvalidPathPattern is returned for a path pattern that is not
// "sender:recipient".
var ErrInvalidPathPattern = errors.New("message: invalid path pattern")

// DefaultExemptPaths lets the verification and user agents exchange
// messages with anyone without authentication or access checks.
var DefaultExemptPaths = []string{
	"verification_agent:*",
	"*:verification_agent",
	"user_agent:*",
	"*:user_agent",
}

type pathPattern struct {
	sender, recipient string
}

// PathSet matches messages by "sender:recipient" pattern pairs. Each
// side uses the policy pattern grammar. The zero value and nil match
// nothing.
type PathSet struct {
	patterns []pathPattern
}

// ParsePathSet parses "sender:recipient" patterns.
func ParsePathSet(paths []string) (*PathSet, error) {
	set := &PathSet{patterns: make([]pathPattern, 0, len(paths))}
	for _, path := range paths {
		sender, recipient, found := strings.Cut(path, ":")
		if !found || sender == "" || recipient == "" || strings.Contains(recipient, ":") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPathPattern, path)
		}
		set.patterns = append(set.patterns, pathPattern{sender, recipient})
	}
	return set, nil
}

// Match reports whether msg's sender and recipient match some pair.
func (s *PathSet) Match(msg *Message) bool {
	if s == nil {
		return false
	}
	for _, pattern := range s.patterns {
		if policy.MatchPattern(msg.SenderID, pattern.sender) && policy.MatchPattern(msg.RecipientID, pattern.recipient) {
			return true
		}
	}
	return false
}

// Len returns the number of pairs.
func (s *PathSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}
