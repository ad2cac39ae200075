package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v5"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorClassRetryable, "retryable"},
		{ErrorClassFatal, "fatal"},
		{ErrorClassUnknown, "unknown"},
		{ErrorClass(999), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.class.String(); got != tt.want {
				t.Errorf("ErrorClass.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassUnknown},
		{"canceled", context.Canceled, ErrorClassFatal},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorClassRetryable},
		{"server error", errors.New("error, status code: 500, message: internal server error"), ErrorClassRetryable},
		{"overloaded", errors.New("model overloaded"), ErrorClassRetryable},
		{"rate limit", errors.New("status code: 429, rate limit reached"), ErrorClassRetryable},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), ErrorClassRetryable},
		{"unauthorized", errors.New("status code: 401, Incorrect API key provided"), ErrorClassFatal},
		{"bad request", errors.New("status code: 400, bad request"), ErrorClassFatal},
		{"model missing", errors.New("model_not_found"), ErrorClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := withRetry(ctx, 5, func() error {
		calls++
		return errors.New("connection reset")
	})
	if err == nil || calls != 1 {
		t.Errorf("calls = %d err = %v, want 1 call and an error", calls, err)
	}
}

func zeroBackOff(t *testing.T) {
	t.Helper()
	prev := newRetryBackOff
	newRetryBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	t.Cleanup(func() { newRetryBackOff = prev })
}

func TestWithRetryRetriesTransientFailures(t *testing.T) {
	zeroBackOff(t)
	calls := 0
	err := withRetry(context.Background(), 2, func() error {
		calls++
		if calls < 3 {
			return errors.New("502 bad gateway")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("calls = %d err = %v, want success on third call", calls, err)
	}
}

func TestWithRetryGivesUpAfterBudget(t *testing.T) {
	zeroBackOff(t)
	calls := 0
	err := withRetry(context.Background(), 1, func() error {
		calls++
		return errors.New("503 service unavailable")
	})
	if err == nil || calls != 2 {
		t.Errorf("calls = %d err = %v, want 2 calls and an error", calls, err)
	}
}

func TestWithRetryDoesNotRetryFatal(t *testing.T) {
	zeroBackOff(t)
	fatal := errors.New("401 unauthorized")
	calls := 0
	err := withRetry(context.Background(), 3, func() error {
		calls++
		return fatal
	})
	if err != fatal || calls != 1 {
		t.Errorf("calls = %d err = %v, want 1 call returning the call error unwrapped", calls, err)
	}
}

func TestWithRetryZeroBudgetCallsOnce(t *testing.T) {
	zeroBackOff(t)
	calls := 0
	err := withRetry(context.Background(), 0, func() error {
		calls++
		return errors.New("503 service unavailable")
	})
	if err == nil || calls != 1 {
		t.Errorf("calls = %d err = %v, want 1 call", calls, err)
	}
}
