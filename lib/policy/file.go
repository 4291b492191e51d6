// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/nexus/lib/atomicfile"
)

// Parse decodes a policies.json document. Comments and trailing commas
// are accepted.
func Parse(data []byte) (Document, error) {
	var document Document
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		return Document{}, fmt.Errorf("policy: parsing policy document: %w", err)
	}
	return document, nil
}

// LoadFile reads and parses a policies.json file.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("policy: reading %s: %w", path, err)
	}
	document, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return document, nil
}

// SaveFile writes document to path as indented JSON, atomically.
func SaveFile(path string, document Document) error {
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("policy: encoding policy document: %w", err)
	}
	return atomicfile.WriteFile(path, append(data, '\n'), 0644)
}
