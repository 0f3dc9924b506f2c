package es

import "context"

// Logger is the optional logging hook used across pupstream. Components
// only log when a Logger is configured, so a nil Logger costs nothing.
//
// keyvals are alternating key/value pairs.
type Logger interface {
	// Debug logs per-item detail such as partition releases.
	Debug(ctx context.Context, msg string, keyvals ...interface{})

	// Info logs lifecycle transitions.
	Info(ctx context.Context, msg string, keyvals ...interface{})

	// Error logs failures that stop a component.
	Error(ctx context.Context, msg string, keyvals ...interface{})
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

// Debug implements Logger.
func (NoOpLogger) Debug(_ context.Context, _ string, _ ...interface{}) {}

// Info implements Logger.
func (NoOpLogger) Info(_ context.Context, _ string, _ ...interface{}) {}

// Error implements Logger.
func (NoOpLogger) Error(_ context.Context, _ string, _ ...interface{}) {}
