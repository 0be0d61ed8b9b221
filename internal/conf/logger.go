// Package conf provides configuration management for the logbook service.
package conf

import "github.com/tphakala/logbook/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger on each call since the global may be replaced after init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
