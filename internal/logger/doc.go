// Package logger wraps zap with a global sugared logger and context helpers.
//
// Services derive a named logger with WithName, attach per-run fields with
// WithKV, and log through the package functions, which pick the logger out
// of the context (falling back to the global one).
package logger
