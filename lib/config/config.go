// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/nexus/lib/message"
	"github.com/bureau-foundation/nexus/lib/msgrule"
	"github.com/bureau-foundation/nexus/lib/signingkey"
	"github.com/bureau-foundation/nexus/lib/token"
)

// EnvironmentVariable names the configuration file for Load.
const EnvironmentVariable = "NEXUS_SECURITY_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the security service configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// StrictMode drops messages that fail authentication, message
	// rules, or access control instead of logging and delivering
	// them.
	StrictMode bool `yaml:"strict_mode"`

	// UseTokens authenticates messages with bearer tokens instead of
	// per-message signatures.
	UseTokens bool `yaml:"use_tokens"`

	// PolicyDenyOverrides lets an explicit policy deny win over ACL
	// and role grants.
	PolicyDenyOverrides bool `yaml:"policy_deny_overrides"`

	Paths  PathsConfig  `yaml:"paths"`
	Keys   KeysConfig   `yaml:"keys"`
	Tokens TokensConfig `yaml:"tokens"`

	// ExemptPaths are "sender:recipient" patterns that skip
	// authentication and access control. Nil means
	// message.DefaultExemptPaths; an empty list exempts nothing.
	ExemptPaths []string `yaml:"exempt_paths"`

	MessageRules []msgrule.RuleConfig `yaml:"message_rules"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the fields an environment section may replace.
// Unset fields keep the base value.
type Overrides struct {
	StrictMode          *bool                `yaml:"strict_mode,omitempty"`
	UseTokens           *bool                `yaml:"use_tokens,omitempty"`
	PolicyDenyOverrides *bool                `yaml:"policy_deny_overrides,omitempty"`
	Paths               *PathsConfig         `yaml:"paths,omitempty"`
	Keys                *KeysConfig          `yaml:"keys,omitempty"`
	Tokens              *TokensConfig        `yaml:"tokens,omitempty"`
	ExemptPaths         []string             `yaml:"exempt_paths,omitempty"`
	MessageRules        []msgrule.RuleConfig `yaml:"message_rules,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for service data.
	Root string `yaml:"root"`

	// ConfigDir holds roles.json, policies.json, and acls.json.
	ConfigDir string `yaml:"config_dir"`

	// KeyStore is the sealed signing-key file.
	KeyStore string `yaml:"key_store"`

	// AuditDB is the SQLite audit log.
	AuditDB string `yaml:"audit_db"`

	// Identity is the age identity that seals the key store.
	Identity string `yaml:"identity"`
}

// KeysConfig configures signing-key rotation.
type KeysConfig struct {
	// RotationInterval is each key's lifetime, e.g. "720h".
	RotationInterval time.Duration `yaml:"rotation_interval"`

	// GraceDays is how long expired keys stay valid for verification.
	GraceDays int `yaml:"grace_days"`

	// AutoPurge removes keys past their grace period on every check.
	AutoPurge bool `yaml:"auto_purge"`

	// CheckInterval is how often the rotator checks the current key.
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Grace returns GraceDays as a duration.
func (k KeysConfig) Grace() time.Duration {
	return time.Duration(k.GraceDays) * 24 * time.Hour
}

// TokensConfig configures bearer tokens.
type TokensConfig struct {
	Lifetime time.Duration `yaml:"lifetime"`

	// RequiredClaims must be present on every inbound token.
	RequiredClaims []string `yaml:"required_claims"`
}

// Default returns the development configuration used as the base
// before the file is applied.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "nexus-security")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:      defaultRoot,
			ConfigDir: filepath.Join(defaultRoot, "access"),
			KeyStore:  filepath.Join(defaultRoot, "keys.age"),
			AuditDB:   filepath.Join(defaultRoot, "audit.db"),
			Identity:  filepath.Join(defaultRoot, "identity.txt"),
		},
		Keys: KeysConfig{
			RotationInterval: signingkey.DefaultRotationInterval,
			GraceDays:        int(signingkey.DefaultGrace / (24 * time.Hour)),
			AutoPurge:        true,
			CheckInterval:    signingkey.DefaultCheckInterval,
		},
		Tokens: TokensConfig{
			Lifetime:       token.DefaultLifetime,
			RequiredClaims: []string{"sub", "exp"},
		},
	}
}

// Load loads the file named by NEXUS_SECURITY_CONFIG. There is no
// fallback when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your nexus-security.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults, applies
// the section for the configured environment, and expands path
// variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			strict := true
			overrides = &Overrides{StrictMode: &strict}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.StrictMode != nil {
		c.StrictMode = *overrides.StrictMode
	}
	if overrides.UseTokens != nil {
		c.UseTokens = *overrides.UseTokens
	}
	if overrides.PolicyDenyOverrides != nil {
		c.PolicyDenyOverrides = *overrides.PolicyDenyOverrides
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.ConfigDir != "" {
			c.Paths.ConfigDir = overrides.Paths.ConfigDir
		}
		if overrides.Paths.KeyStore != "" {
			c.Paths.KeyStore = overrides.Paths.KeyStore
		}
		if overrides.Paths.AuditDB != "" {
			c.Paths.AuditDB = overrides.Paths.AuditDB
		}
		if overrides.Paths.Identity != "" {
			c.Paths.Identity = overrides.Paths.Identity
		}
	}

	if overrides.Keys != nil {
		if overrides.Keys.RotationInterval != 0 {
			c.Keys.RotationInterval = overrides.Keys.RotationInterval
		}
		if overrides.Keys.GraceDays != 0 {
			c.Keys.GraceDays = overrides.Keys.GraceDays
		}
		// AutoPurge is a bool, so the section's value always applies.
		c.Keys.AutoPurge = overrides.Keys.AutoPurge
		if overrides.Keys.CheckInterval != 0 {
			c.Keys.CheckInterval = overrides.Keys.CheckInterval
		}
	}

	if overrides.Tokens != nil {
		if overrides.Tokens.Lifetime != 0 {
			c.Tokens.Lifetime = overrides.Tokens.Lifetime
		}
		if overrides.Tokens.RequiredClaims != nil {
			c.Tokens.RequiredClaims = overrides.Tokens.RequiredClaims
		}
	}

	if overrides.ExemptPaths != nil {
		c.ExemptPaths = overrides.ExemptPaths
	}
	if overrides.MessageRules != nil {
		c.MessageRules = overrides.MessageRules
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"NEXUS_ROOT": c.Paths.Root,
		"HOME":       os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["NEXUS_ROOT"] = c.Paths.Root

	c.Paths.ConfigDir = expandVars(c.Paths.ConfigDir, vars)
	c.Paths.KeyStore = expandVars(c.Paths.KeyStore, vars)
	c.Paths.AuditDB = expandVars(c.Paths.AuditDB, vars)
	c.Paths.Identity = expandVars(c.Paths.Identity, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ExemptPathList returns the effective exempt paths.
func (c *Config) ExemptPathList() []string {
	if c.ExemptPaths == nil {
		return message.DefaultExemptPaths
	}
	return c.ExemptPaths
}

// Rules builds the configured message rules.
func (c *Config) Rules() ([]msgrule.Rule, error) {
	return msgrule.BuildAll(c.MessageRules)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.ConfigDir == "" {
		errs = append(errs, errors.New("paths.config_dir is required"))
	}
	if c.Paths.KeyStore == "" {
		errs = append(errs, errors.New("paths.key_store is required"))
	}

	if c.Keys.RotationInterval <= 0 {
		errs = append(errs, errors.New("keys.rotation_interval must be positive"))
	}
	if c.Keys.GraceDays < 0 {
		errs = append(errs, errors.New("keys.grace_days must not be negative"))
	}
	if c.Keys.CheckInterval <= 0 {
		errs = append(errs, errors.New("keys.check_interval must be positive"))
	}
	if c.Tokens.Lifetime <= 0 {
		errs = append(errs, errors.New("tokens.lifetime must be positive"))
	}

	if _, err := message.ParsePathSet(c.ExemptPathList()); err != nil {
		errs = append(errs, fmt.Errorf("exempt_paths: %w", err))
	}
	if _, err := c.Rules(); err != nil {
		errs = append(errs, fmt.Errorf("message_rules: %w", err))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the root, the access-control directory, and the
// parent directories of the file paths.
func (c *Config) EnsurePaths() error {
	directories := []string{
		c.Paths.Root,
		c.Paths.ConfigDir,
	}
	for _, file := range []string{c.Paths.KeyStore, c.Paths.AuditDB, c.Paths.Identity} {
		if file != "" {
			directories = append(directories, filepath.Dir(file))
		}
	}

	for _, path := range directories {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
