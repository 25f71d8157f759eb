package extraction

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why a provider failed.
type ErrorCode string

const (
	ErrConfiguration ErrorCode = "CONFIGURATION"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrTransport     ErrorCode = "TRANSPORT"
	ErrHTTPStatus    ErrorCode = "HTTP_STATUS"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrParse         ErrorCode = "PARSE"
	ErrCircuitOpen   ErrorCode = "CIRCUIT_OPEN"
	ErrExhausted     ErrorCode = "EXHAUSTED"
)

// Error is a structured provider failure. Its message is what callers see,
// so it stays free of the code prefix.
type Error struct {
	Code      ErrorCode
	Message   string
	Provider  string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(code ErrorCode, provider, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: code == ErrTransport || code == ErrTimeout || code == ErrCircuitOpen,
		Cause:     cause,
	}
}

// IsRetryable reports whether the first *Error in err's chain is transient.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
