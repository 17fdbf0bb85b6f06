// Package log provides structured logging for feedline components.
//
// Loggers are constructed explicitly and passed by dependency injection;
// there is no global logger. The implementation bridges into log/slog so
// cross-cutting concerns can be added as handler wrappers.
//
// Example:
//
//	logger := log.NewLogger(log.WithLevel(log.InfoLevel), log.WithFormatter(&log.TextFormatter{}))
//	logger = logger.With(log.F("component", "fanout"))
//	logger.Info("batch scheduled", log.F("owners", 300))
package log
