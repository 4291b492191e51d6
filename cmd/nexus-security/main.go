// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// nexus-security administers the Nexus security subsystem: signing
// keys, roles, policies, ACLs, bearer tokens, and the audit log.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nexus/lib/cli"
	"github.com/bureau-foundation/nexus/lib/version"
)

func main() {
	if err := rootCommand(os.Stdout).Execute(os.Args[1:]); err != nil {
		// Commands that print their own verdict (access check, token
		// validate) return an ExitError; don't add an "error:" line.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name: "nexus-security",
		Description: `nexus-security: security administration for Nexus agents.

Manage the sealed signing-key store, roles, policies and ACLs, issue
and validate bearer tokens, and inspect the decision audit log.

Every command reads the YAML file named by --config or
NEXUS_SECURITY_CONFIG; without either, development defaults under
~/.local/share/nexus-security are used.`,
		Subcommands: []*cli.Command{
			keysCommand(out),
			accessCommand(out),
			tokenCommand(out),
			auditCommand(out),
			versionCommand(out),
		},
		Examples: []cli.Example{
			{
				Description: "Create the identity, key store, and default roles",
				Command:     "nexus-security keys init && nexus-security access init",
			},
			{
				Description: "Explain whether planner may message executor",
				Command:     "nexus-security access check planner message:create:executor",
			},
		},
	}
}

func versionCommand(out io.Writer) *cli.Command {
	var full bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("version")
			flagSet.BoolVar(&full, "full", false, "include Go version, platform, and binary hash")
			return flagSet
		},
		Run: func(args []string) error {
			if !full {
				fmt.Fprintf(out, "nexus-security %s\n", version.Info())
				return nil
			}
			fmt.Fprintf(out, "nexus-security %s\n", version.Full())
			if hash, path, err := version.SelfHash(); err == nil {
				fmt.Fprintf(out, "  Binary: %s\n  BLAKE3: %s\n", path, hash)
			}
			return nil
		},
	}
}
