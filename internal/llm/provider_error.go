package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure into the llm.* taxonomy the
// orchestrator's retry and fatality rules dispatch on.
type ErrorKind string

const (
	// ErrorKindContextLength indicates the request exceeded the model's
	// context window. Fatal: the investigation routes to summary with
	// risk_score=0.5, confidence_score=0.
	ErrorKindContextLength ErrorKind = "llm.context_length"

	// ErrorKindModelNotFound indicates the requested model identifier is
	// unknown to the provider. Fatal, same handling as ErrorKindContextLength.
	ErrorKindModelNotFound ErrorKind = "llm.model_not_found"

	// ErrorKindRateLimit indicates the provider throttled the request.
	// Fatal, same handling as ErrorKindContextLength.
	ErrorKindRateLimit ErrorKind = "llm.rate_limit"

	// ErrorKindTransient indicates a retryable infrastructure failure
	// (network error, 5xx, timeout). Retried at most twice with jittered
	// backoff; a third failure is treated as fatal.
	ErrorKindTransient ErrorKind = "llm.transient"
)

// ProviderError describes a failure returned by a model provider. It
// crosses package boundaries so the orchestrator can classify the failure
// without depending on any concrete provider SDK.
type ProviderError struct {
	Provider  string
	Operation string
	Kind      ErrorKind
	Code      string
	Message   string
	RequestID string
	Cause     error
}

// NewProviderError constructs a ProviderError. provider and kind are required.
func NewProviderError(provider, operation string, kind ErrorKind, code, message, requestID string, cause error) *ProviderError {
	if provider == "" {
		panic("llm: provider is required")
	}
	if kind == "" {
		panic("llm: provider error kind is required")
	}
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Kind:      kind,
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Cause:     cause,
	}
}

// Retryable reports whether the orchestrator should retry the call. Only
// ErrorKindTransient is retryable; all other kinds are fatal for the
// investigation.
func (e *ProviderError) Retryable() bool {
	return e != nil && e.Kind == ErrorKindTransient
}

func (e *ProviderError) Error() string {
	op := e.Operation
	if op == "" {
		op = "complete"
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	code := ""
	if e.Code != "" {
		code = e.Code + ": "
	}
	return fmt.Sprintf("%s %s (%s): %s%s", e.Provider, e.Kind, op, code, msg)
}

// Unwrap preserves the original error chain.
func (e *ProviderError) Unwrap() error { return e.Cause }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
