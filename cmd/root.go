package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/logbook/cmd/backup"
	"github.com/tphakala/logbook/cmd/critical"
	"github.com/tphakala/logbook/cmd/restore"
	"github.com/tphakala/logbook/cmd/serve"
	"github.com/tphakala/logbook/internal/app"
	"github.com/tphakala/logbook/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "logbook",
		Short:         "Invoice and production order logbook with snapshot backups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		backup.Command(settings),
		restore.Command(settings),
		restore.ResetCommand(settings),
		critical.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := conf.ValidateSettings(settings); err != nil {
			return err
		}
		if _, err := app.SetupLogging(settings); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return app.SetupTelemetry(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Datastore.Type, "datastore", settings.Datastore.Type, "Datastore backend: sqlite, mysql or rest")
	rootCmd.PersistentFlags().StringVar(&settings.Main.Timezone, "timezone", settings.Main.Timezone, "IANA timezone for today and the backup schedule")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
