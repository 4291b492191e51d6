// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package accesscontrol

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/nexus/lib/permission"
)

// ToolFunc runs a tool on behalf of an agent.
type ToolFunc func(ctx context.Context, agentID string, parameters map[string]any) (any, error)

// CheckToolAccess decides whether agentID may execute tool. The
// parameters are visible to policy conditions as
// additional_context.parameters.
func (s *Service) CheckToolAccess(ctx context.Context, agentID, tool string, parameters map[string]any) Decision {
	if parameters == nil {
		parameters = map[string]any{}
	}
	return s.Evaluate(ctx, Request{
		EntityID:   agentID,
		Permission: permission.New(permission.ResourceTool, permission.ActionExecute, tool),
		ResourceID: tool,
		Additional: map[string]any{"parameters": parameters},
	})
}

// WrapTool guards fn with CheckToolAccess. A denied call returns
// ErrAccessDenied when strict and runs with a warning otherwise.
func (s *Service) WrapTool(tool string, strict bool, fn ToolFunc) ToolFunc {
	return func(ctx context.Context, agentID string, parameters map[string]any) (any, error) {
		decision := s.CheckToolAccess(ctx, agentID, tool, parameters)
		if !decision.Allowed {
			if strict {
				s.logger.Error("tool access denied", "agent_id", agentID, "tool", tool, "reason", decision.Reason)
				return nil, fmt.Errorf("%w: %s may not execute %s: %s", ErrAccessDenied, agentID, tool, decision.Reason)
			}
			s.logger.Warn("tool access denied, running in lenient mode", "agent_id", agentID, "tool", tool, "reason", decision.Reason)
		}
		return fn(ctx, agentID, parameters)
	}
}
