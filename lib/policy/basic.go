// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

// BasicPolicies returns the stock default-layer policy set: admins
// may do anything, system services may read and execute core
// resources, sensitive configuration changes are denied, reads and
// listings are allowed, and everything else is denied.
func BasicPolicies() []*Policy {
	return []*Policy{
		{
			Name:           "admin_full_access",
			Description:    "Administrators have full access to all resources",
			Effect:         Allow,
			EntityPatterns: []string{"admin*"},
			Priority:       1000,
		},
		{
			Name:             "system_service_access",
			Description:      "System services have high access to core resources",
			Effect:           Allow,
			EntityPatterns:   []string{"system*", "service*"},
			ResourcePatterns: []string{"system:*", "service:*"},
			ActionPatterns:   []string{"read", "execute"},
			Priority:         900,
		},
		{
			Name:             "sensitive_operations_deny",
			Description:      "Deny sensitive operations by default",
			Effect:           Deny,
			ResourcePatterns: []string{"config:*", "security:*"},
			ActionPatterns:   []string{"update", "delete", "manage"},
			Priority:         500,
		},
		{
			Name:           "basic_read_allow",
			Description:    "Allow basic read operations by default",
			Effect:         Allow,
			ActionPatterns: []string{"read", "list"},
			Priority:       100,
		},
		{
			Name:        "default_deny",
			Description: "Deny everything by default",
			Effect:      Deny,
			Priority:    1,
		},
	}
}

// AddBasicPolicies installs BasicPolicies into the default layer.
func (e *Engine) AddBasicPolicies() {
	for _, policy := range BasicPolicies() {
		// The default layer name is always valid.
		_ = e.AddPolicy(policy, LayerDefault)
	}
}
