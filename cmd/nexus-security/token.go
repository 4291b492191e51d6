// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nexus/lib/cli"
)

func tokenCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "token",
		Summary: "Issue and validate bearer tokens",
		Description: `Issue and validate HS256 bearer tokens signed with the current
signing key. Tokens stay valid across normal rotation until they expire
or their key is purged; emergency rotation invalidates them all.`,
		Subcommands: []*cli.Command{
			tokenIssueCommand(out),
			tokenValidateCommand(out),
		},
		Examples: []cli.Example{
			{Description: "Issue a 15 minute token for planner", Command: "nexus-security token issue planner --lifetime 15m"},
			{Description: "Validate a token from stdin", Command: "echo $TOKEN | nexus-security token validate -"},
		},
	}
}

func tokenIssueCommand(out io.Writer) *cli.Command {
	var options globalOptions
	var (
		lifetime time.Duration
		claims   []string
		noRoles  bool
	)
	return &cli.Command{
		Name:    "issue",
		Summary: "Issue a token for an entity",
		Usage:   "nexus-security token issue <entity> [flags]",
		Description: `Issue a token whose subject is the entity. The entity's assigned
roles are added as the "roles" claim unless --no-roles is given.`,
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("issue")
			flagSet.DurationVar(&lifetime, "lifetime", 0, "token lifetime (default tokens.lifetime)")
			flagSet.StringArrayVar(&claims, "claim", nil, "extra key=value claim (repeatable)")
			flagSet.BoolVar(&noRoles, "no-roles", false, "omit the roles claim")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected <entity>, got %d arguments", len(args))
			}
			extra := make(map[string]any, len(claims)+1)
			for _, claim := range claims {
				name, value, found := strings.Cut(claim, "=")
				if !found || name == "" {
					return fmt.Errorf("claim %q: expected key=value", claim)
				}
				extra[name] = value
			}

			session, err := options.open("token/issue")
			if err != nil {
				return err
			}
			defer session.Close()
			service, err := session.authentication()
			if err != nil {
				return err
			}
			if !noRoles {
				access, err := session.accessControl()
				if err != nil {
					return err
				}
				if roles := access.Roles().EntityRoles(args[0]); len(roles) > 0 {
					extra["roles"] = roles
				}
			}

			issued, err := service.IssueToken(args[0], extra, lifetime)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, issued)
			return nil
		},
	}
}

func tokenValidateCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "validate",
		Summary: "Validate a token and print its claims",
		Usage:   "nexus-security token validate <token|-> [flags]",
		Description: `Check signature, expiry, not-before, and tokens.required_claims.
Prints the claims as JSON; exits 1 when the token is invalid.`,
		Flags: func() *pflag.FlagSet { return options.flagSet("validate") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected <token>, got %d arguments", len(args))
			}
			raw := args[0]
			if raw == "-" {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && err != io.EOF {
					return err
				}
				raw = line
			}
			raw = strings.TrimSpace(raw)

			session, err := options.open("token/validate")
			if err != nil {
				return err
			}
			defer session.Close()
			service, err := session.authentication()
			if err != nil {
				return err
			}

			claims, valid := service.ValidateToken(raw)
			if !valid {
				fmt.Fprintln(out, "INVALID")
				return &cli.ExitError{Code: 1}
			}
			for _, required := range session.config.Tokens.RequiredClaims {
				if !claims.Has(required) {
					fmt.Fprintf(out, "INVALID: missing required claim %q\n", required)
					return &cli.ExitError{Code: 1}
				}
			}
			return cli.WriteJSON(out, claims)
		},
	}
}
