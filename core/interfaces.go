// Package core provides configuration, errors, and logging for the
// optic SDK. It has no dependency on the telemetry engine so that the
// trace and telemetry packages can both build on it.
package core

// Logger interface - minimal logging interface used across the SDK.
// The engine logs about itself through this interface so that pipeline
// failures never recurse into the instrumented logging path.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}
