// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nexus/lib/atomicfile"
	"github.com/bureau-foundation/nexus/lib/audit"
	"github.com/bureau-foundation/nexus/lib/cli"
)

func auditCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "audit",
		Summary: "Inspect the decision audit log",
		Description: `Every access-control, authentication, and key-management decision
made by these commands and by services sharing paths.audit_db is
recorded in a SQLite log.`,
		Subcommands: []*cli.Command{
			auditRecentCommand(out),
			auditExportCommand(out),
			auditPruneCommand(out),
		},
	}
}

func auditRecentCommand(out io.Writer) *cli.Command {
	var options globalOptions
	output := cli.JSONOutput{Writer: out}
	var (
		limit      int
		entity     string
		kind       string
		deniedOnly bool
	)
	return &cli.Command{
		Name:    "recent",
		Summary: "Show recent decisions, newest first",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("recent")
			output.AddJSONFlag(flagSet)
			flagSet.IntVarP(&limit, "limit", "n", 20, "maximum events")
			flagSet.StringVar(&entity, "entity", "", "only this entity")
			flagSet.StringVar(&kind, "kind", "", "only access, authentication, or key events")
			flagSet.BoolVar(&deniedOnly, "denied", false, "only denied decisions")
			return flagSet
		},
		Run: func(args []string) error {
			session, err := options.open("audit/recent")
			if err != nil {
				return err
			}
			defer session.Close()
			log, err := session.auditLog()
			if err != nil {
				return err
			}
			events, err := log.Recent(context.Background(), limit, audit.Filter{
				EntityID:   entity,
				Kind:       audit.Kind(kind),
				DeniedOnly: deniedOnly,
			})
			if err != nil {
				return err
			}
			if done, err := output.EmitJSON(events); done {
				return err
			}
			for _, event := range events {
				fmt.Fprintln(out, event.String())
				if event.Reason != "" {
					fmt.Fprintf(out, "    %s\n", event.Reason)
				}
			}
			return nil
		},
	}
}

func auditExportCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "export",
		Summary: "Write every event as zstd-compressed CBOR",
		Usage:   "nexus-security audit export <file|-> [flags]",
		Flags:   func() *pflag.FlagSet { return options.flagSet("export") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected <file>, got %d arguments", len(args))
			}
			session, err := options.open("audit/export")
			if err != nil {
				return err
			}
			defer session.Close()
			log, err := session.auditLog()
			if err != nil {
				return err
			}

			if args[0] == "-" {
				_, err := log.Export(context.Background(), out)
				return err
			}
			var buffer bytes.Buffer
			written, err := log.Export(context.Background(), &buffer)
			if err != nil {
				return err
			}
			if err := atomicfile.WriteFile(args[0], buffer.Bytes(), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported %d events to %s\n", written, args[0])
			return nil
		},
	}
}

func auditPruneCommand(out io.Writer) *cli.Command {
	var options globalOptions
	var olderThan time.Duration
	return &cli.Command{
		Name:    "prune",
		Summary: "Delete events older than a cutoff",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("prune")
			flagSet.DurationVar(&olderThan, "older-than", 90*24*time.Hour, "age of the oldest event kept")
			return flagSet
		},
		Run: func(args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			session, err := options.open("audit/prune")
			if err != nil {
				return err
			}
			defer session.Close()
			log, err := session.auditLog()
			if err != nil {
				return err
			}
			removed, err := log.Prune(context.Background(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pruned %d events\n", removed)
			return nil
		},
	}
}
