// Package logging provides the structured logger shared by every arbiter
// component.
//
// It wraps log/slog with JSON or text output, level filtering, and the
// default attributes service and version. Components never import this
// package directly; each declares a small Logger interface
// (Debug/Info/Warn/Error) that *Logger satisfies.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	arb.SetLogger(logger.Component("arbitration"))
//
// Never log JWT secrets or bearer tokens.
package logging
