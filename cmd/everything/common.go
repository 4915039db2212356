package main

import (
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/service"
	"github.com/charlesoon/everything/pkg/settings"
)

// createService loads configuration, applies the configured log level, and
// creates the engine service.
func createService() (*service.Service, error) {
	// Load settings.
	config, err := settings.Load()
	if err != nil {
		return nil, err
	}

	// Apply the configured log level.
	if config.LogLevel != "" {
		if level, ok := logging.NameToLevel(config.LogLevel); ok {
			logging.SetLevel(level)
		}
	}

	// Create the service.
	return service.New(config, logging.RootLogger)
}
