package httpclient

import (
	"context"
	"errors"
	"net"

	"github.com/healthbridge/platform/pkg/extraction"
)

// ProviderError classifies a failed outbound call into the extraction error
// taxonomy. Errors that are already classified pass through.
func ProviderError(provider string, err error) *extraction.Error {
	var typed *extraction.Error
	if errors.As(err, &typed) {
		return typed
	}

	var statusErr *StatusError
	var netErr net.Error
	switch {
	case IsOpen(err):
		return extraction.NewError(extraction.ErrCircuitOpen, provider, "Service temporarily unavailable (circuit open)", nil)
	case errors.As(err, &statusErr):
		perr := extraction.NewError(extraction.ErrHTTPStatus, provider, "", statusErr)
		perr.Retryable = IsRetriable(statusErr)
		return perr
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return extraction.NewError(extraction.ErrTimeout, provider, "Request timed out", err)
	case errors.Is(err, context.Canceled):
		perr := extraction.NewError(extraction.ErrTransport, provider, "Request canceled", err)
		perr.Retryable = false
		return perr
	default:
		return extraction.NewError(extraction.ErrTransport, provider, "Request failed", err)
	}
}
