// Package logging constructs the daemon's slog loggers and provides the
// typed attribute helpers used across components. Console output favors a
// compact human format; JSON output is available for log shippers.
package logging
