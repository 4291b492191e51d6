// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical returns the bytes a signature covers: the message without
// its Signature field (SignatureMetadata included), as compact JSON
// with object keys sorted at every depth. Numbers keep their literal
// form.
func (m *Message) Canonical() ([]byte, error) {
	unsigned := *m
	unsigned.Signature = ""

	encoded, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("message: canonicalizing %s: %w", m.MessageID, err)
	}
	return CanonicalJSON(encoded)
}

// CanonicalJSON re-encodes a JSON document with sorted object keys and
// no insignificant whitespace.
func CanonicalJSON(document []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(document))
	decoder.UseNumber()
	var tree any
	if err := decoder.Decode(&tree); err != nil {
		return nil, fmt.Errorf("message: canonical form: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("message: canonical form: %w", err)
	}
	return canonical, nil
}
