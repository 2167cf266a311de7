// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Each part of the terminal logs through a named sub-logger (pty, bridge,
// classifier, viewer, terminal, http) obtained from Component.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	defer logger.Sync()
//	session, err := pty.Spawn(pty.Options{Logger: logger.Component(logging.Pty)})
package logging
