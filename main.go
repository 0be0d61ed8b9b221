package main

import (
	"fmt"
	"os"

	"github.com/tphakala/logbook/cmd"
	"github.com/tphakala/logbook/internal/conf"
)

// Set at build time with -ldflags.
var (
	buildDate string
	version   string
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
