// Package logging provides structured logging using uber/zap.
//
// Two output modes are available: JSON for production and colored console output
// for development. The application level names (error, warn, info, http, verbose,
// debug, silly) are mapped onto zap levels so that the CLI flag, the settings file
// and rendering contexts can all use the same vocabulary.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Forward("warn", []any{"from a window"})
//
// LineWriter turns a byte stream (for example a child process stdout) into log lines.
package logging
