package api

import "github.com/tphakala/logbook/internal/logger"

// GetLogger returns the API logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}
