// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nexus/lib/atomicfile"
	"github.com/bureau-foundation/nexus/lib/cli"
	"github.com/bureau-foundation/nexus/lib/signingkey"
)

func keysCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "keys",
		Summary: "Manage signing keys",
		Description: `Manage the HMAC signing keys that sign messages and tokens.

Keys live in a store sealed to the local age identity. Rotation keeps
earlier keys for verification until they are purged; emergency
rotation discards every key at once.`,
		Subcommands: []*cli.Command{
			keysInitCommand(out),
			keysListCommand(out),
			keysRotateCommand(out, false),
			keysRotateCommand(out, true),
			keysPurgeCommand(out),
			keysExportCommand(out),
			keysImportCommand(out),
			keysBackupCommand(out),
			keysRestoreCommand(out),
			keysIdentityCommand(out),
			keysWatchCommand(),
		},
		Examples: []cli.Example{
			{Description: "Rotate and list keys", Command: "nexus-security keys rotate && nexus-security keys list"},
			{Description: "Revoke everything after a leak", Command: "nexus-security keys emergency"},
		},
	}
}

func keysInitCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "init",
		Summary: "Create the identity and key store if missing",
		Flags:   func() *pflag.FlagSet { return options.flagSet("init") },
		Run: func(args []string) error {
			session, err := options.open("keys/init")
			if err != nil {
				return err
			}
			defer session.Close()

			created, err := session.openKeys(true)
			if err != nil {
				return err
			}
			info := session.keys.Info()
			verb := "Loaded"
			if created {
				verb = "Created"
			}
			fmt.Fprintf(out, "%s key store %s\n", verb, session.store.Path())
			fmt.Fprintf(out, "Current key: %s (fingerprint %s, expires %s)\n",
				info.CurrentKeyID, info.Fingerprint, info.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func keysListCommand(out io.Writer) *cli.Command {
	var options globalOptions
	output := cli.JSONOutput{Writer: out}
	return &cli.Command{
		Name:    "list",
		Summary: "List keys, newest first",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("list")
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			session, err := options.open("keys/list")
			if err != nil {
				return err
			}
			defer session.Close()
			if _, err := session.openKeys(false); err != nil {
				return err
			}

			keys := session.keys.List()
			if done, err := output.EmitJSON(keys); done {
				return err
			}
			tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY ID\tCREATED\tEXPIRES\tSTATE\tFINGERPRINT")
			for _, key := range keys {
				state := "retired"
				switch {
				case key.Current:
					state = "current"
				case key.Active:
					state = "active"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", key.ID,
					key.CreatedAt.Format(time.RFC3339), key.ExpiresAt.Format(time.RFC3339), state, key.Fingerprint)
			}
			return tw.Flush()
		},
	}
}

func keysRotateCommand(out io.Writer, emergency bool) *cli.Command {
	var options globalOptions
	name, summary := "rotate", "Install a new current key"
	if emergency {
		name, summary = "emergency", "Discard every key and install a fresh one"
	}
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Flags:   func() *pflag.FlagSet { return options.flagSet(name) },
		Run: func(args []string) error {
			session, err := options.open("keys/" + name)
			if err != nil {
				return err
			}
			defer session.Close()
			service, err := session.authentication()
			if err != nil {
				return err
			}

			var keyID string
			if emergency {
				keyID, err = service.EmergencyRotation(context.Background())
			} else {
				keyID, err = service.RotateKeys(context.Background())
			}
			if err != nil {
				return err
			}
			if emergency {
				fmt.Fprintf(out, "Emergency rotation complete; every earlier signature and token is now invalid.\n")
			}
			fmt.Fprintf(out, "Current key: %s\n", keyID)
			return nil
		},
	}
}

func keysPurgeCommand(out io.Writer) *cli.Command {
	var options globalOptions
	var grace time.Duration
	return &cli.Command{
		Name:    "purge",
		Summary: "Remove keys expired longer than the grace period",
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("purge")
			flagSet.DurationVar(&grace, "grace", 0, "grace period (default keys.grace_days)")
			return flagSet
		},
		Run: func(args []string) error {
			session, err := options.open("keys/purge")
			if err != nil {
				return err
			}
			defer session.Close()
			service, err := session.authentication()
			if err != nil {
				return err
			}
			if grace == 0 {
				grace = session.config.Keys.Grace()
			}
			removed, err := service.PurgeExpiredKeys(context.Background(), grace)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Purged %d keys\n", removed)
			return nil
		},
	}
}

func keysExportCommand(out io.Writer) *cli.Command {
	var options globalOptions
	var outputPath string
	return &cli.Command{
		Name:    "export",
		Summary: "Write every key, including material, as JSON",
		Description: `Write every key as {key_id: {key, created_at, expires_at, active}}.

The output contains raw key material. With --output the file is
written with mode 0600; otherwise it goes to stdout.`,
		Flags: func() *pflag.FlagSet {
			flagSet := options.flagSet("export")
			flagSet.StringVarP(&outputPath, "output", "o", "", "output file")
			return flagSet
		},
		Run: func(args []string) error {
			session, err := options.open("keys/export")
			if err != nil {
				return err
			}
			defer session.Close()
			service, err := session.authentication()
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(service.ExportKeys(), "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if outputPath == "" {
				_, err = out.Write(data)
				return err
			}
			if err := atomicfile.WriteFile(outputPath, data, 0o600); err != nil {
				return err
			}
			session.logger.Warn("exported key material", "path", outputPath)
			return nil
		},
	}
}

func keysImportCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "import",
		Summary: "Add keys from an export file",
		Usage:   "nexus-security keys import <file> [flags]",
		Flags:   func() *pflag.FlagSet { return options.flagSet("import") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one export file, got %d arguments", len(args))
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var keys map[string]signingkey.ExportedKey
			if err := json.Unmarshal(data, &keys); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			session, err := options.open("keys/import")
			if err != nil {
				return err
			}
			defer session.Close()
			service, err := session.authentication()
			if err != nil {
				return err
			}
			if err := service.ImportKeys(context.Background(), keys); err != nil {
				return err
			}
			fmt.Fprintf(out, "Imported %d keys\n", len(keys))
			return nil
		},
	}
}

func keysBackupCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "backup",
		Summary: "Copy the sealed key store",
		Usage:   "nexus-security keys backup <destination> [flags]",
		Flags:   func() *pflag.FlagSet { return options.flagSet("backup") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one destination, got %d arguments", len(args))
			}
			session, err := options.open("keys/backup")
			if err != nil {
				return err
			}
			defer session.Close()
			if _, err := session.openKeys(false); err != nil {
				return err
			}
			if err := session.store.Backup(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "Backed up %s to %s\n", session.store.Path(), args[0])
			return nil
		},
	}
}

func keysRestoreCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "restore",
		Summary: "Replace the key store with a backup",
		Usage:   "nexus-security keys restore <backup> [flags]",
		Flags:   func() *pflag.FlagSet { return options.flagSet("restore") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one backup file, got %d arguments", len(args))
			}
			session, err := options.open("keys/restore")
			if err != nil {
				return err
			}
			defer session.Close()
			if _, err := session.openKeys(false); err != nil {
				return err
			}
			if err := session.store.Restore(args[0], session.keys); err != nil {
				return err
			}
			fmt.Fprintf(out, "Restored %d keys; current key %s\n",
				session.keys.Info().KeyCount, session.keys.Info().CurrentKeyID)
			return nil
		},
	}
}

func keysIdentityCommand(out io.Writer) *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "identity",
		Summary: "Print the age recipient the key store is sealed to",
		Flags:   func() *pflag.FlagSet { return options.flagSet("identity") },
		Run: func(args []string) error {
			session, err := options.open("keys/identity")
			if err != nil {
				return err
			}
			defer session.Close()
			if _, err := session.openKeys(false); err != nil {
				return err
			}
			fmt.Fprintln(out, session.identity.PublicKey)
			return nil
		},
	}
}

func keysWatchCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "watch",
		Summary: "Rotate and purge on schedule until interrupted",
		Description: `Check the current key every keys.check_interval, rotating when
less than a fifth of its lifetime remains and otherwise purging
expired keys when keys.auto_purge is set. Runs until SIGINT or
SIGTERM.`,
		Flags: func() *pflag.FlagSet { return options.flagSet("watch") },
		Run: func(args []string) error {
			session, err := options.open("keys/watch")
			if err != nil {
				return err
			}
			defer session.Close()
			service, err := session.authentication()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rotator := signingkey.NewRotator(signingkey.RotatorConfig{
				Manager:       service.Keys(),
				Store:         session.store,
				Grace:         session.config.Keys.Grace(),
				AutoPurge:     session.config.Keys.AutoPurge,
				CheckInterval: session.config.Keys.CheckInterval,
				OnRotate: func(keyID string, emergency bool) {
					session.logger.Info("signing key rotated", "key_id", keyID, "emergency", emergency)
				},
				Logger: session.logger,
			})
			session.logger.Info("watching signing keys", "check_interval", session.config.Keys.CheckInterval)
			rotator.Run(ctx)
			return nil
		},
	}
}
