// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/nexus/lib/accesscontrol"
	"github.com/bureau-foundation/nexus/lib/cli"
	"github.com/bureau-foundation/nexus/lib/permission"
	"github.com/bureau-foundation/nexus/lib/policy"
)

func accessCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "access",
		Summary: "Manage roles, policies, and ACLs",
		Description: `Administer the access-control configuration in paths.config_dir.

A request is allowed by a direct ACL grant, then by any assigned role,
then by the policy engine. Changes are written back to roles.json,
policies.json, and acls.json immediately.`,
		Subcommands: []*cli.Command{
			accessCheckCommand(out),
			accessGrantCommand(out),
			accessAssignCommand(out),
			accessRoleCreateCommand(out),
			accessPolicyCreateCommand(out),
			accessRolesCommand(out),
			accessPoliciesCommand(out),
			accessPermissionsCommand(out),
			accessInitCommand(out),
		},
		Examples: []cli.Example{
			{Description: "Let planner message executor for a day", Command: "nexus-security access grant planner message:create:executor --expires 24h"},
			{Description: "Deny config updates to everyone", Command: "nexus-security access policy-create no_config_update --effect deny --action update --resource 'config:*' --priority 500"},
		},
	}
}

// accessAdmin opens a session and wraps its access-control service.
func accessAdmin(options *globalOptions, command string) (*session, *accesscontrol.Manager, error) {
	session, err := options.open(command)
	if err != nil {
		return nil, nil, err
	}
	service, err := session.accessControl()
	if err != nil {
		session.Close()
		return nil, nil, err
	}
	return session, accesscontrol.NewManager(service), nil
}

// parseTarget parses "type:action[:instance]" into the parts the
// admin manager takes; "*" becomes an empty instance.
func parseTarget(value string) (resourceType, action, instance string, err error) {
	parsed, err := permission.ParseStrict(value)
	if err != nil {
		return "", "", "", err
	}
	instance = parsed.Instance
	if instance == permission.AnyInstance {
		instance = ""
	}
	return string(parsed.Type), string(parsed.Action), instance, nil
}

func accessCheckCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "check",
		Summary: "Explain whether an entity holds a permission",
		Usage:   "nexus-security access check <entity> <type:action[:instance]> [flags]",
		Description: `Evaluate one request and print the decision and its reason.
Exits 1 when the request is denied.`,
		Flags: func() *pflag.FlagSet { return options.flagSet("check") },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <entity> <permission>, got %d arguments", len(args))
			}
			resourceType, action, instance, err := parseTarget(args[1])
			if err != nil {
				return err
			}
			session, manager, err := accessAdmin(&options, "access/check")
			if err != nil {
				return err
			}
			defer session.Close()

			allowed, reason, err := manager.CheckPermission(context.Background(), args[0], resourceType, action, instance)
			if err != nil {
				return err
			}
			verdict := "DENIED"
			if allowed {
				verdict = "ALLOWED"
			}
			fmt.Fprintf(out, "%s: %s\n", verdict, reason)
			if !allowed {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func accessGrantCommand(out io.Writer) *cli.Command {
	var options globalOptions
	var expires time.Duration
	return &cli.Command{
		Name:    "grant",
		Summary: "Grant a direct ACL permission",
		Usage:   "nexus-security access grant <entity> <type:action[:instance]> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("grant")
			flagSet.DurationVar(&expires, "expires", 0, "grant lifetime (default never expires)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <entity> <permission>, got %d arguments", len(args))
			}
			resourceType, action, instance, err := parseTarget(args[1])
			if err != nil {
				return err
			}
			session, manager, err := accessAdmin(&options, "access/grant")
			if err != nil {
				return err
			}
			defer session.Close()

			if err := manager.GrantACLPermission(args[0], resourceType, action, instance, expires); err != nil {
				return err
			}
			fmt.Fprintf(out, "Granted %s to %s\n", args[1], args[0])
			return nil
		},
	}
}

func accessAssignCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "assign",
		Summary: "Assign a role to an entity",
		Usage:   "nexus-security access assign <entity> <role> [flags]",
		Flags:   func() *pflag.FlagSet { return options.flagSet("assign") },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <entity> <role>, got %d arguments", len(args))
			}
			session, manager, err := accessAdmin(&options, "access/assign")
			if err != nil {
				return err
			}
			defer session.Close()
			if err := manager.AssignRoleToEntity(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(out, "Assigned role %s to %s\n", args[1], args[0])
			return nil
		},
	}
}

func accessRoleCreateCommand(out io.Writer) *cli.Command {
	var options globalOptions
	var (
		description string
		permissions []string
		parents     []string
	)
	return &cli.Command{
		Name:    "role-create",
		Summary: "Create a role",
		Usage:   "nexus-security access role-create <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("role-create")
			flagSet.StringVar(&description, "description", "", "role description")
			flagSet.StringArrayVarP(&permissions, "permission", "p", nil, "permission string (repeatable)")
			flagSet.StringArrayVar(&parents, "parent", nil, "parent role (repeatable)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected <name>, got %d arguments", len(args))
			}
			session, manager, err := accessAdmin(&options, "access/role-create")
			if err != nil {
				return err
			}
			defer session.Close()
			created, err := manager.CreateRole(args[0], description, permissions, parents)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Created role %s with %d permissions\n", created.Name, created.Permissions.Len())
			return nil
		},
	}
}

func accessPolicyCreateCommand(out io.Writer) *cli.Command {
	var options globalOptions
	var (
		description string
		effect      string
		layer       string
		resources   []string
		actions     []string
		entities    []string
		conditions  []string
		priority    int
	)
	return &cli.Command{
		Name:    "policy-create",
		Summary: "Create a policy",
		Usage:   "nexus-security access policy-create <name> [flags]",
		Description: `Add a policy to a layer: "default", "entity:<id>",
"resource:<type>", or "action:<action>".

Condition values are YAML scalars or flow lists, so
--condition environment.tier=prod and
--condition additional_context.parameters.mode='[read, list]' both work.`,
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("policy-create")
			flagSet.StringVar(&description, "description", "", "policy description")
			flagSet.StringVar(&effect, "effect", string(policy.Allow), "allow or deny")
			flagSet.StringVar(&layer, "layer", policy.LayerDefault, "policy layer")
			flagSet.StringArrayVar(&resources, "resource", nil, "resource pattern (repeatable)")
			flagSet.StringArrayVar(&actions, "action", nil, "action pattern (repeatable)")
			flagSet.StringArrayVar(&entities, "entity", nil, "entity pattern (repeatable)")
			flagSet.StringArrayVar(&conditions, "condition", nil, "path=value condition (repeatable)")
			flagSet.IntVar(&priority, "priority", 0, "higher priorities are evaluated first")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected <name>, got %d arguments", len(args))
			}
			var parsedEffect policy.Effect
			if err := parsedEffect.UnmarshalText([]byte(effect)); err != nil {
				return err
			}
			parsedConditions, err := parseConditions(conditions)
			if err != nil {
				return err
			}

			session, manager, err := accessAdmin(&options, "access/policy-create")
			if err != nil {
				return err
			}
			defer session.Close()

			created := &policy.Policy{
				Name:             args[0],
				Description:      description,
				Effect:           parsedEffect,
				Conditions:       parsedConditions,
				ResourcePatterns: resources,
				ActionPatterns:   actions,
				EntityPatterns:   entities,
				Priority:         priority,
			}
			if err := manager.CreatePolicy(created, layer); err != nil {
				return err
			}
			fmt.Fprintf(out, "Created %s policy %s in layer %s\n", parsedEffect, created.Name, layer)
			return nil
		},
	}
}

// parseConditions decodes "path=value" pairs. Values that are not
// valid YAML (a bare "*", for one) are kept as strings.
func parseConditions(pairs []string) (map[string]any, error) {
	conditions := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		path, raw, found := strings.Cut(pair, "=")
		if !found || path == "" {
			return nil, fmt.Errorf("condition %q: expected path=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		conditions[path] = value
	}
	return conditions, nil
}

func accessRolesCommand(out io.Writer) *cli.Command {
	var options globalOptions
	output := cli.JSONOutput{Writer: out}
	return &cli.Command{
		Name:    "roles",
		Summary: "List roles",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("roles")
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			session, manager, err := accessAdmin(&options, "access/roles")
			if err != nil {
				return err
			}
			defer session.Close()
			roles, err := manager.ListRoles()
			if err != nil {
				return err
			}
			if done, err := output.EmitJSON(roles); done {
				return err
			}
			tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLE\tPARENTS\tPERMISSIONS\tDESCRIPTION")
			for _, listed := range roles {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", listed.Name,
					strings.Join(listed.ParentRoles, ","), listed.Permissions.Len(), listed.Description)
			}
			return tw.Flush()
		},
	}
}

func accessPoliciesCommand(out io.Writer) *cli.Command {
	var options globalOptions
	output := cli.JSONOutput{Writer: out}
	return &cli.Command{
		Name:    "policies",
		Summary: "List policies by layer",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("policies")
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			session, manager, err := accessAdmin(&options, "access/policies")
			if err != nil {
				return err
			}
			defer session.Close()
			placements := manager.ListPolicies()
			if done, err := output.EmitJSON(placements); done {
				return err
			}
			tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "LAYER\tPOLICY\tEFFECT\tPRIORITY\tRESOURCES\tACTIONS\tENTITIES")
			for _, placement := range placements {
				listed := placement.Policy
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", placement.Layer, listed.Name, listed.Effect, listed.Priority,
					strings.Join(listed.ResourcePatterns, ","), strings.Join(listed.ActionPatterns, ","),
					strings.Join(listed.EntityPatterns, ","))
			}
			return tw.Flush()
		},
	}
}

func accessPermissionsCommand(out io.Writer) *cli.Command {
	var options globalOptions
	output := cli.JSONOutput{Writer: out}
	return &cli.Command{
		Name:    "permissions",
		Summary: "Show an entity's roles and permissions",
		Usage:   "nexus-security access permissions <entity> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("permissions")
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected <entity>, got %d arguments", len(args))
			}
			session, manager, err := accessAdmin(&options, "access/permissions")
			if err != nil {
				return err
			}
			defer session.Close()
			summary := manager.ListEntityPermissions(args[0])
			if done, err := output.EmitJSON(summary); done {
				return err
			}
			fmt.Fprintf(out, "Entity:      %s\n", summary.EntityID)
			fmt.Fprintf(out, "Roles:       %s\n", strings.Join(summary.Roles, ", "))
			fmt.Fprintf(out, "Direct:      %s\n", strings.Join(summary.DirectPermissions, ", "))
			fmt.Fprintf(out, "Effective:   %s\n", strings.Join(summary.EffectivePermissions, ", "))
			return nil
		},
	}
}

func accessInitCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "init",
		Summary: "Write built-in roles and basic policies",
		Flags:   func() *pflag.FlagSet { return options.flagSet("init") },
		Run: func(args []string) error {
			session, err := options.open("access/init")
			if err != nil {
				return err
			}
			defer session.Close()
			if err := session.config.EnsurePaths(); err != nil {
				return err
			}
			service, err := session.accessControl()
			if err != nil {
				return err
			}
			if err := service.CreateDefaultConfiguration(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote default access configuration to %s\n", service.Dir())
			return nil
		},
	}
}
