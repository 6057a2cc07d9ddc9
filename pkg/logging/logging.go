package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the root logger for the engine.
// Deployed environments get production JSON output; "local" gets a
// human-readable development console.
func New(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}
