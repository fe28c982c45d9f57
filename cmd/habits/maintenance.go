package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tct123/open-source-habit-tracker-app/internal/backup"
)

func rebuildCmd() *cobra.Command {
	var habitID int64
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rederive the weekly heatmap cache from the completion ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			if habitID != 0 {
				if err := e.tracker.RebuildAggregates(cmd.Context(), habitID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rebuilt habit %d\n", habitID)
				return nil
			}
			n, err := e.tracker.RebuildAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %d habits\n", n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&habitID, "habit", 0, "rebuild a single habit")
	return cmd
}

func verifyCmd() *cobra.Command {
	var habitID int64
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the heatmap cache with the completion ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			mismatches, err := e.tracker.VerifyAggregates(cmd.Context(), habitID)
			if err != nil {
				return err
			}
			if len(mismatches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "cache consistent")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(mismatches); err != nil {
				return err
			}
			return fmt.Errorf("%d cache rows disagree with the ledger; run habits rebuild", len(mismatches))
		},
	}
	cmd.Flags().Int64Var(&habitID, "habit", 0, "verify a single habit")
	return cmd
}

func passphrase(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if p := os.Getenv("HABITS_BACKUP_PASSPHRASE"); p != "" {
		return p, nil
	}
	return "", errors.New("a passphrase is required (--passphrase or HABITS_BACKUP_PASSPHRASE)")
}

func backupCmd() *cobra.Command {
	var pass string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Take an encrypted snapshot of the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := passphrase(pass)
			if err != nil {
				return err
			}
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			mgr := backup.NewManager(e.cfg.Backup, e.db, nil, e.logger.With("component", "backup"))
			b, err := mgr.RunNow(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d bytes)\n", b.Key, b.Location, b.SizeBytes)
			return nil
		},
	}
	cmd.Flags().StringVar(&pass, "passphrase", "", "encryption passphrase")
	return cmd
}

func restoreCmd() *cobra.Command {
	var pass, out string
	cmd := &cobra.Command{
		Use:   "restore <key>",
		Short: "Decrypt a snapshot into a new database file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := passphrase(pass)
			if err != nil {
				return err
			}
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			mgr := backup.NewManager(e.cfg.Backup, e.db, nil, e.logger.With("component", "backup"))
			report, err := mgr.Restore(cmd.Context(), args[0], p, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d habits to %s", report.Habits, report.OutPath)
			if report.Rebuilt > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (cache rebuilt, %d mismatches)", report.Mismatches)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&pass, "passphrase", "", "encryption passphrase")
	cmd.Flags().StringVarP(&out, "out", "o", "", "path of the database file to create")
	if err := cmd.MarkFlagRequired("out"); err != nil {
		panic(err)
	}
	return cmd
}
