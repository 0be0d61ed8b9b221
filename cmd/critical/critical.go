// Package critical provides the critical items command
package critical

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	backupcmd "github.com/tphakala/logbook/cmd/backup"
	"github.com/tphakala/logbook/internal/app"
	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/critical"
)

// Command creates and returns the critical command
func Command(settings *conf.Settings) *cobra.Command {
	var (
		limit  int
		sortBy string
	)
	cmd := &cobra.Command{
		Use:   "critical",
		Short: "Show unresolved invoices and orders past the age threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sortBy != "source" && sortBy != "urgency" {
				return fmt.Errorf("--sort must be source or urgency")
			}
			return backupcmd.WithApp(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				return Print(ctx, cmd.OutOrStdout(), a, time.Now().In(settings.Location()), limit, sortBy == "urgency")
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", settings.Critical.DisplayLimit, "Maximum items shown, 0 for all")
	cmd.Flags().StringVar(&sortBy, "sort", "source", "Ordering: source or urgency")
	return cmd
}

// Print writes the critical items as of today.
func Print(ctx context.Context, w io.Writer, a *app.App, today time.Time, limit int, byUrgency bool) error {
	live, err := backup.LoadCollections(ctx, a.DS)
	if err != nil {
		return err
	}
	threshold := a.Settings.Critical.ThresholdDays
	if threshold <= 0 {
		threshold = critical.DefaultThresholdDays
	}

	items := critical.DeriveThreshold(live.Invoices, live.Orders, today, threshold)
	summary := critical.Summarize(items)
	if byUrgency {
		items = critical.SortByUrgency(items)
	}
	if limit > 0 {
		items = critical.Prefix(items, limit)
	}

	if _, err := fmt.Fprintf(w, "%d critical (%d notas, %d ordens), oldest %d days\n",
		summary.Total, summary.Invoices, summary.Orders, summary.OldestAgeDays); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	table := uitable.New()
	table.AddRow("KIND", "ID", "NUMBER", "STATUS", "DATE", "AGE")
	for _, it := range items {
		table.AddRow(it.SourceKind, it.SourceID, it.Number, it.Status, it.Date, fmt.Sprintf("%dd", it.AgeDays))
	}
	_, err = fmt.Fprintln(w, table)
	return err
}
