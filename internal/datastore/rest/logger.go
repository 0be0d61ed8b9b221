package rest

import "github.com/tphakala/logbook/internal/logger"

// GetLogger returns the hosted datastore logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore.rest")
}
