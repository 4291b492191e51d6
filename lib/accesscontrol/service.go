// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package accesscontrol

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/bureau-foundation/nexus/lib/acl"
	"github.com/bureau-foundation/nexus/lib/audit"
	"github.com/bureau-foundation/nexus/lib/clock"
	"github.com/bureau-foundation/nexus/lib/permission"
	"github.com/bureau-foundation/nexus/lib/policy"
	"github.com/bureau-foundation/nexus/lib/role"
)

// ErrAccessDenied is returned when a guarded operation is refused.
var ErrAccessDenied = errors.New("accesscontrol: access denied")

// Source names what decided a request.
type Source string

const (
	SourceACL    Source = "acl"
	SourceRole   Source = "role"
	SourcePolicy Source = "policy"
	SourceNone   Source = "none"
	SourceExempt Source = "exempt"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed bool
	Source  Source
	Reason  string
}

// Request is one access question.
type Request struct {
	EntityID   string
	Permission permission.Permission

	// ResourceID names the instance when Permission's instance is "*".
	ResourceID string

	Environment     map[string]any
	MessageMetadata map[string]any
	Additional      map[string]any
}

// Config configures a Service. Nil managers are created empty (roles
// seeded with the built-ins).
type Config struct {
	Roles    *role.Manager
	Policies *policy.Engine
	ACLs     *acl.Manager

	// Dir is where roles.json, policies.json, and acls.json live.
	// Empty disables persistence.
	Dir string

	// PolicyDenyOverrides consults the policy engine first and lets an
	// explicit deny win over ACL and role grants.
	PolicyDenyOverrides bool

	Clock    clock.Clock
	Recorder audit.Recorder
	Logger   *slog.Logger
}

// Service composes ACL, role, and policy checks. Safe for concurrent
// use.
type Service struct {
	roles         *role.Manager
	policies      *policy.Engine
	acls          *acl.Manager
	dir           string
	denyOverrides bool
	clock         clock.Clock
	recorder      audit.Recorder
	logger        *slog.Logger
}

// NewService returns a Service, loading any configuration files found
// in config.Dir.
func NewService(config Config) *Service {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Roles == nil {
		config.Roles = role.NewManager(config.Logger)
	}
	if config.Policies == nil {
		config.Policies = policy.NewEngine()
	}
	if config.ACLs == nil {
		config.ACLs = acl.NewManager(config.Clock, config.Logger)
	}
	service := &Service{
		roles:         config.Roles,
		policies:      config.Policies,
		acls:          config.ACLs,
		dir:           config.Dir,
		denyOverrides: config.PolicyDenyOverrides,
		clock:         config.Clock,
		recorder:      audit.OrDiscard(config.Recorder),
		logger:        config.Logger,
	}
	if service.dir != "" {
		// Failures are logged per file; defaults stay in place.
		_ = service.Load()
	}
	return service
}

// Roles returns the role manager.
func (s *Service) Roles() *role.Manager { return s.roles }

// Policies returns the policy engine.
func (s *Service) Policies() *policy.Engine { return s.policies }

// ACLs returns the ACL manager.
func (s *Service) ACLs() *acl.Manager { return s.acls }

// Dir returns the configuration directory, or "".
func (s *Service) Dir() string { return s.dir }

// HasPermission reports whether entityID may exercise p, optionally on
// resourceID.
func (s *Service) HasPermission(entityID string, p permission.Permission, resourceID string) bool {
	return s.Check(context.Background(), entityID, p, resourceID).Allowed
}

// Check evaluates a bare permission request.
func (s *Service) Check(ctx context.Context, entityID string, p permission.Permission, resourceID string) Decision {
	return s.Evaluate(ctx, Request{EntityID: entityID, Permission: p, ResourceID: resourceID})
}

// Evaluate decides request and records the decision.
func (s *Service) Evaluate(ctx context.Context, request Request) Decision {
	decision := s.decide(request)
	p := request.Permission
	event := audit.Event{
		Kind:     audit.KindAccess,
		EntityID: request.EntityID,
		Resource: string(p.Type) + ":" + s.instance(request),
		Action:   string(p.Action),
		Allowed:  decision.Allowed,
		Source:   string(decision.Source),
		Reason:   decision.Reason,
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", "entity_id", request.EntityID, "error", err)
	}
	return decision
}

func (s *Service) decide(request Request) Decision {
	p := request.Permission
	policyContext := s.policyContext(request)

	var evaluated *policy.Result
	if s.denyOverrides {
		result := s.policies.Evaluate(policyContext)
		if result.Effect == policy.Deny {
			return Decision{Allowed: false, Source: SourcePolicy, Reason: "Access denied: " + result.Reason}
		}
		evaluated = &result
	}

	if s.acls.HasPermission(request.EntityID, p, request.ResourceID) {
		return Decision{Allowed: true, Source: SourceACL, Reason: "Permission granted through ACL"}
	}
	if s.roles.HasPermission(request.EntityID, p) {
		roles := strings.Join(s.roles.EntityRoles(request.EntityID), ", ")
		return Decision{Allowed: true, Source: SourceRole, Reason: "Permission granted through roles: " + roles}
	}

	if evaluated == nil {
		result := s.policies.Evaluate(policyContext)
		evaluated = &result
	}
	switch evaluated.Effect {
	case policy.Allow:
		return Decision{Allowed: true, Source: SourcePolicy, Reason: "Access allowed: " + evaluated.Reason}
	case policy.Deny:
		return Decision{Allowed: false, Source: SourcePolicy, Reason: "Access denied: " + evaluated.Reason}
	}
	return Decision{Allowed: false, Source: SourceNone, Reason: "No applicable policy found. Access is denied by default."}
}

// instance is the resource id the policy engine sees.
func (s *Service) instance(request Request) string {
	if !request.Permission.IsWildcardInstance() {
		return request.Permission.Instance
	}
	if request.ResourceID != "" {
		return request.ResourceID
	}
	return permission.AnyInstance
}

func (s *Service) policyContext(request Request) *policy.Context {
	return &policy.Context{
		EntityID:        request.EntityID,
		ResourceType:    string(request.Permission.Type),
		ResourceID:      s.instance(request),
		Action:          string(request.Permission.Action),
		Environment:     maps.Clone(request.Environment),
		Timestamp:       s.clock.Now(),
		MessageMetadata: maps.Clone(request.MessageMetadata),
		Additional:      maps.Clone(request.Additional),
	}
}

// Grant gives entityID p through the ACL. Zero expiresIn never
// expires.
func (s *Service) Grant(entityID string, p permission.Permission, resourceID string, expiresIn time.Duration) {
	s.acls.Grant(entityID, p, resourceID, expiresIn)
	s.logger.Info("permission granted", "entity_id", entityID, "permission", p.String(), "resource_id", resourceID)
}

// AssignRole assigns a role to entityID.
func (s *Service) AssignRole(entityID, name string) error {
	if err := s.roles.AssignRole(entityID, name); err != nil {
		return err
	}
	s.logger.Info("role assigned", "entity_id", entityID, "role", name)
	return nil
}
