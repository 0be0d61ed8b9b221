// Package restore provides the restore and reset commands
package restore

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	backupcmd "github.com/tphakala/logbook/cmd/backup"
	"github.com/tphakala/logbook/internal/app"
	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/conf"
)

const riskWarning = `WARNING: this replaces every invoice, production order and note with the
snapshot contents. On backends without transactions a failure part way through
leaves the collections partially empty. Take a backup first if in doubt.`

// Command creates and returns the restore command
func Command(settings *conf.Settings) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Replace the live collections with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprintln(out, riskWarning)
				return fmt.Errorf("restore not confirmed, rerun with --yes")
			}
			return backupcmd.WithApp(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				return Restore(ctx, out, a, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the destructive restore")
	return cmd
}

// ResetCommand creates and returns the reset command
func ResetCommand(settings *conf.Settings) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every invoice, production order and note",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset not confirmed, rerun with --yes")
			}
			return backupcmd.WithApp(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				result, err := a.Restorer.Reset(ctx)
				return report(cmd.OutOrStdout(), a, "Reset", result, err)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the destructive reset")
	return cmd
}

// Restore loads snapshot id and applies it to the live collections.
func Restore(ctx context.Context, w io.Writer, a *app.App, id string) error {
	snap, err := a.Snapshots.GetSnapshot(ctx, id)
	if err != nil {
		a.Notifications.Failure("backup", "Restore failed", err)
		return err
	}
	result, err := a.Restorer.Restore(ctx, snap)
	return report(w, a, "Restore", result, err)
}

func report(w io.Writer, a *app.App, action string, result backup.RestoreResult, err error) error {
	if err != nil {
		a.Notifications.Failure("backup", action+" failed", err)
		if result.PartiallyApplied {
			fmt.Fprintf(w, "%s failed at %s of %s; the live collections were modified and are incomplete\n",
				action, result.FailedStage, result.FailedCollection)
		}
		return err
	}

	total := 0
	for _, n := range result.Inserted {
		total += n
	}
	a.Notifications.Success("backup", action+" completed", fmt.Sprintf("%d records restored", total))
	_, err = fmt.Fprintf(w, "%s completed: %d records written, transactional=%t\n", action, total, result.Transactional)
	return err
}
