// Package backup manages point-in-time snapshots of the tracked collections:
// creation with retention, listing, deletion, restore and the daily
// automatic snapshot.
package backup

import "github.com/tphakala/logbook/internal/logger"

// GetLogger returns the backup package logger scoped to the backup module.
// The logger is fetched from the global logger each time so it follows the
// central logger once that is configured.
func GetLogger() logger.Logger {
	return logger.Global().Module("backup")
}

// Field constructors re-exported for use in this package.
// This avoids import shadowing issues with function parameters named "logger".
var (
	logString   = logger.String
	logError    = logger.Error
	logInt      = logger.Int
	logBool     = logger.Bool
	logDuration = logger.Duration
)
