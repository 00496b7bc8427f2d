// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap. Development mode logs coloured, human readable lines;
// production mode logs JSON with ISO8601 timestamps.
//
// Usage:
//
//	logger, err := logger.New("development", "debug")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("Application started")
//	logger.Error("An error occurred", zap.Error(err))
package logger
