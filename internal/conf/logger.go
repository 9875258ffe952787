// Package conf provides configuration management for pulseshim.
package conf

import "github.com/tphakala/pulseshim/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time so it follows the
// central logger once main has installed it.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
