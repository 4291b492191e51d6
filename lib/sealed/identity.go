// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/nexus/lib/atomicfile"
	"github.com/bureau-foundation/nexus/lib/secret"
)

// LoadIdentity reads an identity file written by WriteIdentity.
func LoadIdentity(path string) (*Keypair, error) {
	privateKey, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading identity: %w", err)
	}
	publicKey, err := Recipient(privateKey)
	if err != nil {
		privateKey.Close()
		return nil, err
	}
	return &Keypair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

// WriteIdentity stores the private key at path with mode 0600,
// creating the parent directory with mode 0700.
func WriteIdentity(path string, keypair *Keypair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("sealed: creating identity directory: %w", err)
	}
	contents := append([]byte(nil), keypair.PrivateKey.Bytes()...)
	contents = append(contents, '\n')
	defer secret.Zero(contents)
	if err := atomicfile.WriteFile(path, contents, 0o600); err != nil {
		return fmt.Errorf("sealed: writing identity: %w", err)
	}
	return nil
}

// LoadOrCreateIdentity loads the identity at path, generating and
// writing a new one when the file does not exist. The second result
// reports whether a new identity was created.
func LoadOrCreateIdentity(path string) (*Keypair, bool, error) {
	keypair, err := LoadIdentity(path)
	if err == nil {
		return keypair, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	keypair, err = GenerateKeypair()
	if err != nil {
		return nil, false, err
	}
	if err := WriteIdentity(path, keypair); err != nil {
		keypair.Close()
		return nil, false, err
	}
	return keypair, true, nil
}
