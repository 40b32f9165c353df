// Package toolerrors provides structured error types for tool invocation
// failures. ToolError preserves message and causal chains while supporting
// errors.Is/As, and tags every failure with one of the tool.* error kinds so
// it can be recorded as a Tool message without aborting the enclosing phase.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a tool failure. Every Kind recovers locally: the Tool
// Registry & Executor records the failure as a Tool message with an error
// payload and never lets it propagate to the graph as a raised exception.
type Kind string

const (
	// KindInvalidArguments marks a request that failed JSON-schema validation
	// against the tool's declared schema.
	KindInvalidArguments Kind = "tool.invalid_arguments"
	// KindTimeout marks a tool call that exceeded its per-tool timeout.
	KindTimeout Kind = "tool.timeout"
	// KindExecution marks any other failure raised by the tool's handler,
	// including a warehouse query failure reclassified by the caller.
	KindExecution Kind = "tool.execution"
)

// ToolError represents a structured tool failure that preserves message and
// causal context while still implementing the standard error interface. Tool
// errors may be nested via Cause to retain diagnostics across retries.
type ToolError struct {
	// Kind tags the failure for routing and Tool message construction.
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying tool error, enabling error chains with
	// errors.Is/As.
	Cause *ToolError
}

// InvalidArguments constructs a ToolError with KindInvalidArguments.
func InvalidArguments(message string) *ToolError {
	return New(KindInvalidArguments, message)
}

// Timeout constructs a ToolError with KindTimeout.
func Timeout(message string) *ToolError {
	return New(KindTimeout, message)
}

// Execution constructs a ToolError with KindExecution.
func Execution(message string) *ToolError {
	return New(KindExecution, message)
}

// New constructs a ToolError with the given kind and message.
func New(kind Kind, message string) *ToolError {
	if message == "" {
		message = string(kind)
	}
	return &ToolError{Kind: kind, Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error. The
// cause is converted into a ToolError chain so the kind and message survive
// serialization while errors.Is/As keep working through Unwrap.
func NewWithCause(kind Kind, message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Kind:    kind,
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a ToolError chain, tagging the
// outermost wrapper as KindExecution unless it already is a ToolError.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Kind:    KindExecution,
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the result as a
// KindExecution ToolError.
func Errorf(format string, args ...any) *ToolError {
	return Execution(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
