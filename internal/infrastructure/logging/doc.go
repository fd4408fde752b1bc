// Package logging provides structured logging for kasametrics.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional forwarding of warnings and errors to a remote log sink
//     (Loki, MQTT) without blocking the caller
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	fwd := logging.NewForwarder(lokiClient, logging.ForwarderOptions{Level: slog.LevelWarn})
//	fwd.Start()
//	defer fwd.Close()
//
//	logger := logging.New(cfg.Logging, "1.0.0", fwd)
//	logger.Warn("device query failed", "address", "10.0.0.5", "feed", "lamp")
//
// Never log tokens or passwords.
package logging
