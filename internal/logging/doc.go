// Package logging provides the shared slog construction and typed attribute
// helpers used across vidsight. The console handler is meant for interactive
// terminals; the JSON handler for log shipping.
package logging
