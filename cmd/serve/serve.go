// Package serve provides the serve command
package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/logbook/internal/app"
	"github.com/tphakala/logbook/internal/conf"
)

// Command creates and returns the serve command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the automatic backup scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings)
		},
	}

	cmd.Flags().StringVar(&settings.WebServer.Port, "port", settings.WebServer.Port, "HTTP listen port")
	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	ds, err := app.OpenDatastore(settings)
	if err != nil {
		return err
	}

	a, err := app.New(settings, ds)
	if err != nil {
		_ = ds.Close()
		return err
	}
	defer func() { _ = a.Close() }()

	return a.Run(ctx)
}
