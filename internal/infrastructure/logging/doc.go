// Package logging provides structured logging for the garage controller.
//
// It wraps log/slog so every entry carries the service name and version,
// and components add their own name via Logger.Component.
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
//	logger := logging.New(cfg.Logging, version)
//	log := logger.Component("coordinator")
//	log.Info("door transition", "state", "open")
//
// # Security
//
// Never log the shared secret or any token received from the network.
package logging
