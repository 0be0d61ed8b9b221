// Package datastore provides the gorm-backed record and snapshot store.
package datastore

import "github.com/tphakala/logbook/internal/logger"

// GetLogger returns the datastore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
