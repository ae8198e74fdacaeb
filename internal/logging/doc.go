// Package logging builds the slog loggers used by the command line tool:
// a human-oriented console handler and a JSON handler for log collectors.
package logging
