// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signingkey

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/nexus/lib/atomicfile"
	"github.com/bureau-foundation/nexus/lib/codec"
	"github.com/bureau-foundation/nexus/lib/sealed"
	"github.com/bureau-foundation/nexus/lib/secret"
)

const storeVersion = 1

// storeDocument is the plaintext inside a sealed key store.
type storeDocument struct {
	Version      int         `cbor:"version"`
	CurrentKeyID string      `cbor:"current_key_id"`
	Keys         []storedKey `cbor:"keys"`
}

type storedKey struct {
	ID        string    `cbor:"id"`
	Material  []byte    `cbor:"material"`
	CreatedAt time.Time `cbor:"created_at"`
	ExpiresAt time.Time `cbor:"expires_at"`
	Active    bool      `cbor:"active"`
}

// Store keeps a manager's keys in a file sealed to an age identity.
// The file is replaced atomically with mode 0600.
type Store struct {
	path     string
	identity *sealed.Keypair
	logger   *slog.Logger
}

// NewStore returns a store at path. The identity is borrowed and must
// outlive the store.
func NewStore(path string, identity *sealed.Keypair, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{path: path, identity: identity, logger: logger}
}

// Path returns the sealed file's location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the sealed file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save seals the manager's keys to the store file.
func (s *Store) Save(manager *Manager) error {
	keys, currentID := manager.snapshot()
	document := storeDocument{Version: storeVersion, CurrentKeyID: currentID}
	for _, key := range keys {
		document.Keys = append(document.Keys, storedKey{
			ID:        key.ID,
			Material:  key.Material,
			CreatedAt: key.CreatedAt,
			ExpiresAt: key.ExpiresAt,
			Active:    key.Active,
		})
	}

	plaintext, err := codec.Marshal(document)
	if err != nil {
		return fmt.Errorf("signingkey: encoding store: %w", err)
	}
	defer secret.Zero(plaintext)
	for _, key := range keys {
		secret.Zero(key.Material)
	}

	ciphertext, err := sealed.Seal(plaintext, []string{s.identity.PublicKey})
	if err != nil {
		return fmt.Errorf("signingkey: sealing store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("signingkey: creating store directory: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, ciphertext, 0o600); err != nil {
		return fmt.Errorf("signingkey: writing store: %w", err)
	}
	s.logger.Debug("key store saved", "path", s.path, "keys", len(keys))
	return nil
}

// Load replaces the manager's keys with the store's contents.
func (s *Store) Load(manager *Manager) error {
	ciphertext, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("signingkey: reading store: %w", err)
	}
	keys, currentID, err := s.open(ciphertext)
	if err != nil {
		return err
	}
	if err := manager.replace(keys, currentID); err != nil {
		return err
	}
	s.logger.Info("key store loaded", "path", s.path, "keys", len(keys), "current_key_id", currentID)
	return nil
}

func (s *Store) open(ciphertext []byte) ([]*Key, string, error) {
	plaintext, err := sealed.Open(ciphertext, s.identity.PrivateKey)
	if err != nil {
		return nil, "", fmt.Errorf("signingkey: opening store: %w", err)
	}
	defer plaintext.Close()

	var document storeDocument
	if err := codec.Unmarshal(plaintext.Bytes(), &document); err != nil {
		return nil, "", fmt.Errorf("signingkey: decoding store: %w", err)
	}
	if document.Version != storeVersion {
		return nil, "", fmt.Errorf("signingkey: unsupported store version %d", document.Version)
	}
	keys := make([]*Key, 0, len(document.Keys))
	for _, stored := range document.Keys {
		keys = append(keys, &Key{
			ID:        stored.ID,
			Material:  stored.Material,
			CreatedAt: stored.CreatedAt,
			ExpiresAt: stored.ExpiresAt,
			Active:    stored.Active,
		})
	}
	return keys, document.CurrentKeyID, nil
}

// Backup copies the sealed file to destination, mode 0600.
func (s *Store) Backup(destination string) error {
	ciphertext, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("signingkey: reading store: %w", err)
	}
	if err := atomicfile.WriteFile(destination, ciphertext, 0o600); err != nil {
		return fmt.Errorf("signingkey: writing backup: %w", err)
	}
	s.logger.Info("key store backed up", "destination", destination)
	return nil
}

// Restore loads a backup into the manager and, once it has decrypted
// and decoded cleanly, makes it the store file.
func (s *Store) Restore(source string, manager *Manager) error {
	ciphertext, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("signingkey: reading backup: %w", err)
	}
	keys, currentID, err := s.open(ciphertext)
	if err != nil {
		return err
	}
	if err := manager.replace(keys, currentID); err != nil {
		return err
	}
	if err := atomicfile.WriteFile(s.path, ciphertext, 0o600); err != nil {
		return fmt.Errorf("signingkey: writing store: %w", err)
	}
	s.logger.Info("key store restored", "source", source, "keys", len(keys))
	return nil
}

// Open loads the store into a new manager, or generates a manager and
// saves it when the store file does not exist yet. The second result
// reports whether a new store was created.
func Open(store *Store, config Config) (*Manager, bool, error) {
	manager := newManager(config)
	err := store.Load(manager)
	if err == nil {
		return manager, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	manager, err = NewManager(config)
	if err != nil {
		return nil, false, err
	}
	if err := store.Save(manager); err != nil {
		return nil, false, err
	}
	return manager, true, nil
}
