package app

import "github.com/tphakala/logbook/internal/logger"

// GetLogger returns the app logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}
