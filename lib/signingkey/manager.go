// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signingkey

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/nexus/lib/clock"
)

var (
	// ErrNoCurrentKey is returned when the current-key pointer names no
	// stored key. Unreachable through the public API except after a
	// Restore of an inconsistent document.
	ErrNoCurrentKey = errors.New("signingkey: no current key")

	// ErrUnknownKey is returned by Key for an id the manager does not
	// hold.
	ErrUnknownKey = errors.New("signingkey: unknown key id")

	// ErrRotation is returned when a new key cannot be generated.
	ErrRotation = errors.New("signingkey: rotation failed")
)

// DefaultRotationInterval is the key lifetime when Config leaves it
// zero.
const DefaultRotationInterval = 30 * 24 * time.Hour

// Config configures a Manager.
type Config struct {
	// Clock defaults to the wall clock.
	Clock clock.Clock

	// RotationInterval is the lifetime of each generated key.
	RotationInterval time.Duration

	// Logger defaults to discarding.
	Logger *slog.Logger
}

// Manager holds signing keys. Safe for concurrent use.
type Manager struct {
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	// generate produces new keys. Always called without mu held.
	generate func(now time.Time, lifetime time.Duration) (*Key, error)

	mu        sync.RWMutex
	keys      map[string]*Key
	currentID string
}

// NewManager returns a manager holding one freshly generated key.
func NewManager(config Config) (*Manager, error) {
	manager := newManager(config)
	key, err := manager.generate(manager.clock.Now(), manager.interval)
	if err != nil {
		return nil, err
	}
	manager.keys[key.ID] = key
	manager.currentID = key.ID
	manager.logger.Info("signing key generated", "key_id", key.ID, "fingerprint", key.Fingerprint())
	return manager, nil
}

func newManager(config Config) *Manager {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.RotationInterval <= 0 {
		config.RotationInterval = DefaultRotationInterval
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		clock:    config.Clock,
		interval: config.RotationInterval,
		logger:   config.Logger,
		generate: generateKey,
		keys:     make(map[string]*Key),
	}
}

// RotationInterval returns the configured key lifetime.
func (m *Manager) RotationInterval() time.Duration {
	return m.interval
}

// CurrentKey returns a copy of the signing key, rotating first when
// it has expired.
func (m *Manager) CurrentKey() (*Key, error) {
	now := m.clock.Now()

	m.mu.RLock()
	current, exists := m.keys[m.currentID]
	if exists && !current.Expired(now) {
		key := current.clone()
		m.mu.RUnlock()
		return key, nil
	}
	m.mu.RUnlock()

	if exists {
		m.logger.Warn("current signing key expired, rotating", "key_id", current.ID)
	}
	fresh, err := m.generate(now, m.interval)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Another caller may have rotated while the lock was released; its
	// key wins and fresh is discarded.
	current, exists = m.keys[m.currentID]
	if exists && !current.Expired(now) {
		key := current.clone()
		m.mu.Unlock()
		return key, nil
	}
	previous := m.installLocked(fresh)
	key := fresh.clone()
	m.mu.Unlock()

	m.logRotation(key, previous)
	return key, nil
}

// Key returns a copy of the key with the given id, active or not.
func (m *Manager) Key(id string) (*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, exists := m.keys[id]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, id)
	}
	return key.clone(), nil
}

// Rotate installs a new current key. The previous key stays available
// for verification. Returns the new key's id.
func (m *Manager) Rotate() (string, error) {
	key, err := m.generate(m.clock.Now(), m.interval)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	previous := m.installLocked(key)
	logged := key.clone()
	m.mu.Unlock()

	m.logRotation(logged, previous)
	return logged.ID, nil
}

// installLocked makes key current, deactivating the previous current
// key, and returns the previous id. Caller holds mu for writing.
func (m *Manager) installLocked(key *Key) string {
	previous := m.currentID
	if old, exists := m.keys[previous]; exists {
		old.Active = false
	}
	m.keys[key.ID] = key
	m.currentID = key.ID
	return previous
}

func (m *Manager) logRotation(key *Key, previous string) {
	m.logger.Info("signing key rotated",
		"key_id", key.ID,
		"previous_key_id", previous,
		"fingerprint", key.Fingerprint(),
		"expires_at", key.ExpiresAt,
	)
}

// PurgeExpired removes every non-current key whose expiry plus grace
// is in the past, returning how many were removed.
func (m *Manager) PurgeExpired(grace time.Duration) int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, key := range m.keys {
		if id == m.currentID {
			continue
		}
		if now.After(key.ExpiresAt.Add(grace)) {
			delete(m.keys, id)
			removed++
			m.logger.Info("purged expired signing key", "key_id", id)
		}
	}
	return removed
}

// EmergencyRotate discards every key and installs a fresh one.
func (m *Manager) EmergencyRotate() (string, error) {
	key, err := m.generate(m.clock.Now(), m.interval)
	if err != nil {
		return "", err
	}
	fingerprint := key.Fingerprint()

	m.mu.Lock()
	discarded := len(m.keys)
	m.keys = map[string]*Key{key.ID: key}
	m.currentID = key.ID
	m.mu.Unlock()

	m.logger.Warn("emergency key rotation, all previous keys invalidated",
		"key_id", key.ID,
		"discarded", discarded,
		"fingerprint", fingerprint,
	)
	return key.ID, nil
}

// Import adds or replaces a key. Zero CreatedAt defaults to now and
// zero ExpiresAt to CreatedAt plus the rotation interval. The key
// becomes current when it is active or the only key held.
func (m *Manager) Import(key Key) error {
	if key.ID == "" {
		return fmt.Errorf("signingkey: import requires a key id")
	}
	if len(key.Material) == 0 {
		return fmt.Errorf("signingkey: import of %q has no key material", key.ID)
	}
	imported := key.clone()
	if imported.CreatedAt.IsZero() {
		imported.CreatedAt = m.clock.Now()
	}
	if imported.ExpiresAt.IsZero() {
		imported.ExpiresAt = imported.CreatedAt.Add(m.interval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[imported.ID] = imported
	if imported.Active || len(m.keys) == 1 {
		if old, exists := m.keys[m.currentID]; exists && old.ID != imported.ID {
			old.Active = false
		}
		imported.Active = true
		m.currentID = imported.ID
	}
	m.logger.Info("signing key imported", "key_id", imported.ID, "current", m.currentID == imported.ID)
	return nil
}

// ImportExported imports every key of an export, in id order.
func (m *Manager) ImportExported(keys map[string]ExportedKey) error {
	for _, id := range slices.Sorted(maps.Keys(keys)) {
		key, err := keys[id].Decode(id)
		if err != nil {
			return err
		}
		if err := m.Import(key); err != nil {
			return err
		}
	}
	return nil
}

// Export returns every key in interchange form. The result carries
// key material; treat it as a secret.
func (m *Manager) Export() map[string]ExportedKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]ExportedKey, len(m.keys))
	for id, key := range m.keys {
		result[id] = exportKey(key)
	}
	return result
}

// Info summarizes the manager without exposing key material.
type Info struct {
	CurrentKeyID string        `json:"current_key_id"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	Fingerprint  string        `json:"fingerprint"`
	KeyCount     int           `json:"key_count"`
	Interval     time.Duration `json:"rotation_interval"`
}

// Info reports on the current key.
func (m *Manager) Info() Info {
	m.mu.RLock()
	info := Info{
		CurrentKeyID: m.currentID,
		KeyCount:     len(m.keys),
		Interval:     m.interval,
	}
	var current *Key
	if key, exists := m.keys[m.currentID]; exists {
		current = key.clone()
	}
	m.mu.RUnlock()

	if current != nil {
		info.CreatedAt = current.CreatedAt
		info.ExpiresAt = current.ExpiresAt
		info.Fingerprint = current.Fingerprint()
	}
	return info
}

// Summary describes one key without its material.
type Summary struct {
	ID          string    `json:"key_id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Active      bool      `json:"active"`
	Current     bool      `json:"current"`
	Fingerprint string    `json:"fingerprint"`
}

// List describes every key, newest first.
func (m *Manager) List() []Summary {
	keys, currentID := m.snapshot()
	result := make([]Summary, 0, len(keys))
	for _, key := range keys {
		result = append(result, Summary{
			ID:          key.ID,
			CreatedAt:   key.CreatedAt,
			ExpiresAt:   key.ExpiresAt,
			Active:      key.Active,
			Current:     key.ID == currentID,
			Fingerprint: key.Fingerprint(),
		})
	}
	slices.SortFunc(result, func(a, b Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// snapshot returns copies of every key and the current id.
func (m *Manager) snapshot() ([]*Key, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]*Key, 0, len(m.keys))
	for _, id := range slices.Sorted(maps.Keys(m.keys)) {
		keys = append(keys, m.keys[id].clone())
	}
	return keys, m.currentID
}

// replace swaps in a full key set. currentID must name one of keys.
func (m *Manager) replace(keys []*Key, currentID string) error {
	table := make(map[string]*Key, len(keys))
	for _, key := range keys {
		table[key.ID] = key.clone()
	}
	if _, exists := table[currentID]; !exists {
		return fmt.Errorf("%w: %q", ErrNoCurrentKey, currentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = table
	m.currentID = currentID
	return nil
}
