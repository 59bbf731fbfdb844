// Package logger provides structured logging functionality for the application
// using Go's standard library log/slog package. It builds the process logger
// from configuration, carries request-scoped loggers through a context, and
// offers helpers for capturing log output in tests.
package logger
