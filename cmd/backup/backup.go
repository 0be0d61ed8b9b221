// Package backup provides the backup commands
package backup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/tphakala/logbook/internal/app"
	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/datastore"
)

const commandTimeout = 5 * time.Minute

// Command creates and returns the backup command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list and delete snapshots of the live collections",
		Long: `Backup creates a manual snapshot of the invoices, production orders and notes.
Only the newest snapshots are kept; older ones are deleted after each new snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return WithApp(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				return Create(ctx, cmd.OutOrStdout(), a)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return WithApp(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				return List(ctx, cmd.OutOrStdout(), a.Snapshots, settings.Location())
			})
		},
	}, &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return WithApp(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				if err := a.Snapshots.DeleteSnapshot(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s deleted\n", args[0])
				return err
			})
		},
	})
	return cmd
}

// WithApp opens the datastore and builds the app without the web server,
// scheduler or MQTT, then runs fn with a bounded context.
func WithApp(ctx context.Context, settings *conf.Settings, fn func(context.Context, *app.App) error) error {
	local := *settings
	local.WebServer.Enabled = false
	local.Backup.Schedule.Enabled = false
	local.MQTT.Enabled = false

	ds, err := app.OpenDatastore(&local)
	if err != nil {
		return err
	}
	a, err := app.New(&local, ds)
	if err != nil {
		_ = ds.Close()
		return err
	}
	defer func() { _ = a.Close() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return fn(ctx, a)
}

// Create captures the live collections as a manual snapshot.
func Create(ctx context.Context, w io.Writer, a *app.App) error {
	payload, err := backup.LoadCollections(ctx, a.DS)
	if err != nil {
		return err
	}
	snap, err := a.Snapshots.CreateSnapshot(ctx, payload, backup.KindManual)
	if err != nil {
		return err
	}
	counts := snap.Counts()
	_, err = fmt.Fprintf(w, "Snapshot %s created (%d notas, %d ordens, %d comentarios)\n", snap.ID,
		counts[datastore.CollectionInvoices], counts[datastore.CollectionOrders], counts[datastore.CollectionNotes])
	return err
}

// List prints a table of stored snapshots.
func List(ctx context.Context, w io.Writer, store *backup.Store, loc *time.Location) error {
	snaps, err := store.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		_, err := fmt.Fprintln(w, "No snapshots")
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "CREATED", "KIND", "NOTAS", "ORDENS", "COMENTARIOS")
	for i := range snaps {
		s := &snaps[i]
		counts := s.Counts()
		kind := string(s.Kind)
		if s.Malformed {
			kind += " (unreadable)"
		}
		table.AddRow(s.ID, s.CreatedAt.In(loc).Format("2006-01-02 15:04:05"), kind,
			counts[datastore.CollectionInvoices], counts[datastore.CollectionOrders], counts[datastore.CollectionNotes])
	}
	_, err = fmt.Fprintln(w, table)
	return err
}
