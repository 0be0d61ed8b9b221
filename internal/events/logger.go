package events

import "github.com/tphakala/logbook/internal/logger"

// GetLogger returns the events package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("events")
}
