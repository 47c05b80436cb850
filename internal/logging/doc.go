// Package logging provides structured logging utilities for the zele sync core.
//
// It centralizes attribute naming so log lines from the cache, credential,
// thread-sync and watch layers stay queryable, and it sanitizes PII:
// user emails are hashed before logging and tokens are never logged directly.
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "threads.list")
//	logger.Info("hydrated threads", logging.Status(logging.StatusSuccess))
package logging
