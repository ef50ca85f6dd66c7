package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Configuration errors - fatal, raised synchronously from Init
	ErrMissingAPIKey        = errors.New("api key is required")
	ErrMissingServiceName   = errors.New("service name is required")
	ErrInvalidEndpoint      = errors.New("invalid endpoint URL")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Adapter errors - isolated per adapter, recorded and logged by the
	// registry, never propagated to instrumented code
	ErrAdapterInstall     = errors.New("adapter install failed")
	ErrAdapterUnsupported = errors.New("library version not supported by adapter")

	// Export errors - internal to the pipeline, surfaced only through
	// rate-limited self-logging and the Stats counters
	ErrExportRetryable    = errors.New("retryable export failure")
	ErrExportFatal        = errors.New("fatal export failure")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// OpError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type OpError struct {
	Op      string // Operation that failed (e.g., "pipeline.export")
	Kind    string // Error kind (e.g., "config", "adapter", "export")
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *OpError) Error() string {
	switch {
	case e.Op != "" && e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError creates a new OpError
func NewOpError(op, kind string, err error) *OpError {
	return &OpError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// ConfigError creates a configuration error with a descriptive message.
// Configuration errors are the only errors Init surfaces to the caller;
// everything downstream degrades to counters.
func ConfigError(message string, err error) *OpError {
	return &OpError{
		Op:      "config.Validate",
		Kind:    "config",
		Message: message,
		Err:     err,
	}
}

// IsRetryable reports whether an export error should be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExportRetryable)
}

// IsFatal reports whether an export error must be dropped without retry.
func IsFatal(err error) bool {
	return errors.Is(err, ErrExportFatal)
}
