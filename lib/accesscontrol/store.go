// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package accesscontrol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/nexus/lib/acl"
	"github.com/bureau-foundation/nexus/lib/atomicfile"
	"github.com/bureau-foundation/nexus/lib/policy"
	"github.com/bureau-foundation/nexus/lib/role"
)

// Configuration file names inside the configuration directory.
const (
	RolesFile    = "roles.json"
	PoliciesFile = "policies.json"
	ACLsFile     = "acls.json"
)

// ErrNoConfigDir is returned by Save and Load on a Service without a
// configuration directory.
var ErrNoConfigDir = errors.New("accesscontrol: no configuration directory")

// Load reads whichever configuration files exist. Each failing file is
// logged and left unapplied; the joined failures are returned.
func (s *Service) Load() error {
	if s.dir == "" {
		return ErrNoConfigDir
	}
	var failures []error

	var roles role.Document
	if loaded, err := readDocument(filepath.Join(s.dir, RolesFile), &roles); err != nil {
		failures = append(failures, s.loadFailed(RolesFile, err))
	} else if loaded {
		s.roles.Restore(roles)
		s.logger.Info("roles loaded", "path", filepath.Join(s.dir, RolesFile), "roles", len(roles.Roles))
	}

	policiesPath := filepath.Join(s.dir, PoliciesFile)
	if policies, err := policy.LoadFile(policiesPath); err == nil {
		s.policies.Restore(policies)
		s.logger.Info("policies loaded", "path", policiesPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		failures = append(failures, s.loadFailed(PoliciesFile, err))
	}

	var acls acl.Document
	if loaded, err := readDocument(filepath.Join(s.dir, ACLsFile), &acls); err != nil {
		failures = append(failures, s.loadFailed(ACLsFile, err))
	} else if loaded {
		s.acls.Restore(acls)
		s.logger.Info("acls loaded", "path", filepath.Join(s.dir, ACLsFile))
	}

	return errors.Join(failures...)
}

func (s *Service) loadFailed(name string, err error) error {
	s.logger.Error("access control file not loaded, keeping defaults", "file", name, "error", err)
	return fmt.Errorf("accesscontrol: loading %s: %w", name, err)
}

// readDocument decodes a JSON-with-comments file into target. It
// reports false without error when the file does not exist.
func readDocument(path string, target any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), target); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes all three configuration files atomically.
func (s *Service) Save() error {
	if s.dir == "" {
		return ErrNoConfigDir
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("accesscontrol: creating %s: %w", s.dir, err)
	}
	if err := writeDocument(filepath.Join(s.dir, RolesFile), s.roles.Snapshot()); err != nil {
		return err
	}
	if err := policy.SaveFile(filepath.Join(s.dir, PoliciesFile), s.policies.Snapshot()); err != nil {
		return err
	}
	if err := writeDocument(filepath.Join(s.dir, ACLsFile), s.acls.Snapshot()); err != nil {
		return err
	}
	s.logger.Debug("access control configuration saved", "dir", s.dir)
	return nil
}

func writeDocument(path string, document any) error {
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("accesscontrol: encoding %s: %w", filepath.Base(path), err)
	}
	if err := atomicfile.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("accesscontrol: writing %s: %w", path, err)
	}
	return nil
}

// CreateDefaultConfiguration adds any missing built-in role and basic
// policy, then saves when a configuration directory is set.
func (s *Service) CreateDefaultConfiguration() error {
	defaults := role.NewManager(nil)
	for _, name := range defaults.Roles() {
		builtin, err := defaults.Role(name)
		if err != nil {
			return err
		}
		if err := s.roles.AddRole(builtin); err != nil && !errors.Is(err, role.ErrRoleExists) {
			return err
		}
	}
	for _, basic := range policy.BasicPolicies() {
		if _, err := s.policies.Policy(basic.Name, policy.LayerDefault); err == nil {
			continue
		}
		if err := s.policies.AddPolicy(basic, policy.LayerDefault); err != nil {
			return err
		}
	}
	s.logger.Info("default access control configuration created")
	if s.dir == "" {
		return nil
	}
	return s.Save()
}
