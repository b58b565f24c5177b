package app

import (
	"strings"

	"github.com/charlesng35/doctracker/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
// Development mode uses the console encoder.
func ConfigureLogging(level string, development bool) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.InitWithOptions(logger.Options{Level: level, Development: development})
}
