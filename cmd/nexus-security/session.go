// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nexus/lib/accesscontrol"
	"github.com/bureau-foundation/nexus/lib/audit"
	"github.com/bureau-foundation/nexus/lib/authentication"
	"github.com/bureau-foundation/nexus/lib/cli"
	"github.com/bureau-foundation/nexus/lib/config"
	"github.com/bureau-foundation/nexus/lib/sealed"
	"github.com/bureau-foundation/nexus/lib/signingkey"
)

// errNotInitialized is returned when a command needs the key store
// before "keys init" has created it.
var errNotInitialized = errors.New("key store not initialized; run 'nexus-security keys init'")

// globalOptions are the flags every leaf command accepts.
type globalOptions struct {
	ConfigPath string
	Verbose    bool
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

// flagSet returns a flag set for name carrying the global flags.
func (o *globalOptions) flagSet(name string) *pflag.FlagSet {
	flagSet := newFlagSet(name)
	flagSet.StringVar(&o.ConfigPath, "config", "", "configuration file (default $"+config.EnvironmentVariable+")")
	flagSet.BoolVarP(&o.Verbose, "verbose", "v", false, "debug logging")
	return flagSet
}

// loadConfig reads --config, then NEXUS_SECURITY_CONFIG, and falls
// back to the development defaults when neither is given.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case o.ConfigPath != "":
		cfg, err = config.LoadFile(o.ConfigPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session holds what one command invocation opened. Close releases
// everything.
type session struct {
	config   *config.Config
	logger   *slog.Logger
	audit    *audit.Log
	identity *sealed.Keypair
	store    *signingkey.Store
	keys     *signingkey.Manager
}

func (o *globalOptions) open(command string) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return &session{
		config: cfg,
		logger: cli.NewCommandLogger(o.Verbose).With("command", command),
	}, nil
}

func (s *session) Close() {
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			s.logger.Warn("closing audit log", "error", err)
		}
	}
	if s.identity != nil {
		s.identity.Close()
	}
}

// recorder opens the audit log on first use. An empty audit_db
// disables recording.
func (s *session) recorder() (audit.Recorder, error) {
	if s.audit != nil {
		return s.audit, nil
	}
	if s.config.Paths.AuditDB == "" {
		return audit.Discard, nil
	}
	if err := s.config.EnsurePaths(); err != nil {
		return nil, err
	}
	log, err := audit.Open(audit.Config{Path: s.config.Paths.AuditDB, Logger: s.logger})
	if err != nil {
		return nil, err
	}
	s.audit = log
	return log, nil
}

// auditLog is recorder for commands that read the log itself.
func (s *session) auditLog() (*audit.Log, error) {
	if s.config.Paths.AuditDB == "" {
		return nil, errors.New("paths.audit_db is not configured")
	}
	if _, err := s.recorder(); err != nil {
		return nil, err
	}
	return s.audit, nil
}

// openKeys loads the identity and key store. With create set, missing
// files are generated; otherwise they must exist.
func (s *session) openKeys(create bool) (created bool, err error) {
	if s.keys != nil {
		return false, nil
	}
	if create {
		if err := s.config.EnsurePaths(); err != nil {
			return false, err
		}
		identity, newIdentity, err := sealed.LoadOrCreateIdentity(s.config.Paths.Identity)
		if err != nil {
			return false, err
		}
		if newIdentity {
			s.logger.Info("identity created", "path", s.config.Paths.Identity, "recipient", identity.PublicKey)
		}
		s.identity = identity
	} else {
		identity, err := sealed.LoadIdentity(s.config.Paths.Identity)
		if errors.Is(err, os.ErrNotExist) {
			return false, errNotInitialized
		}
		if err != nil {
			return false, err
		}
		s.identity = identity
	}

	s.store = signingkey.NewStore(s.config.Paths.KeyStore, s.identity, s.logger)
	if !create && !s.store.Exists() {
		return false, errNotInitialized
	}
	keys, created, err := signingkey.Open(s.store, signingkey.Config{
		RotationInterval: s.config.Keys.RotationInterval,
		Logger:           s.logger,
	})
	if err != nil {
		return false, err
	}
	s.keys = keys
	return created, nil
}

// authentication returns the facade over the opened keys; every key
// change is saved and recorded.
func (s *session) authentication() (*authentication.Service, error) {
	if _, err := s.openKeys(false); err != nil {
		return nil, err
	}
	recorder, err := s.recorder()
	if err != nil {
		return nil, err
	}
	return authentication.NewService(authentication.Config{
		Keys:          s.keys,
		Store:         s.store,
		TokenLifetime: s.config.Tokens.Lifetime,
		Recorder:      recorder,
		Logger:        s.logger,
	}), nil
}

// accessControl returns the service over the configured directory.
func (s *session) accessControl() (*accesscontrol.Service, error) {
	recorder, err := s.recorder()
	if err != nil {
		return nil, err
	}
	return accesscontrol.NewService(accesscontrol.Config{
		Dir:                 s.config.Paths.ConfigDir,
		PolicyDenyOverrides: s.config.PolicyDenyOverrides,
		Recorder:            recorder,
		Logger:              s.logger,
	}), nil
}
