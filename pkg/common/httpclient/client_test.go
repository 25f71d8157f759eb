package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/healthbridge/platform/pkg/extraction"
)

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds after transient failures", []error{errors.New("dial tcp: refused"), &StatusError{StatusCode: 503}}, 3, false},
		{"stops on client error", []error{&StatusError{StatusCode: 400, Body: "bad"}}, 1, true},
		{"retries rate limiting", []error{&StatusError{StatusCode: 429}, &StatusError{StatusCode: 429}, &StatusError{StatusCode: 429}}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), 3, time.Millisecond, func() error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return errors.New("unreachable")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      extraction.ErrorCode
		retryable bool
	}{
		{"server error", &StatusError{StatusCode: http.StatusBadGateway}, extraction.ErrHTTPStatus, true},
		{"rate limited", &StatusError{StatusCode: http.StatusTooManyRequests}, extraction.ErrHTTPStatus, true},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, extraction.ErrHTTPStatus, false},
		{"deadline", context.DeadlineExceeded, extraction.ErrTimeout, true},
		{"canceled", context.Canceled, extraction.ErrTransport, false},
		{"connection", errors.New("connection reset"), extraction.ErrTransport, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := ProviderError("eka_scribe", tt.err)
			assert.Equal(t, tt.code, perr.Code)
			assert.Equal(t, tt.retryable, perr.Retryable)
		})
	}
}
