package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrorClass tells whether a collaborator failure is worth retrying.
type ErrorClass int

const (
	// ErrorClassRetryable marks transient failures (network, 5xx, rate limits).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal marks failures a retry cannot fix (auth, bad request, unknown model).
	ErrorClassFatal
	// ErrorClassUnknown is used when there is no error to classify.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Step names used in outcomes, logs and metric labels.
const (
	StepClassify = "classify"
	StepGenerate = "generate"
	StepNotify   = "notify"
	StepInject   = "inject"
	StepJournal  = "journal"
	StepUsers    = "users"
)

// Outcome is the reported result of one collaborator call. A failed outcome is
// logged and counted by the Pipeline; it never stops the comment from being
// processed further.
type Outcome struct {
	Step  string
	Err   error
	Class ErrorClass
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

func succeeded(step string) Outcome { return Outcome{Step: step, Class: ErrorClassUnknown} }

func failed(step string, err error) Outcome {
	return Outcome{Step: step, Err: err, Class: ClassifyError(err)}
}

// ClassifyError sorts a collaborator error into retryable or fatal.
//
// Fatal: authentication/authorization (401, 403, invalid api key), bad
// requests (400, 404, unsupported model) and context cancellation.
// Retryable: server errors (5xx), rate limiting (429), timeouts and
// connection failures. Anything else is treated as retryable.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}
	lower := strings.ToLower(err.Error())

	serverPatterns := []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout", "overloaded"}
	for _, p := range serverPatterns {
		if strings.Contains(lower, p) {
			return ErrorClassRetryable
		}
	}

	fatalPatterns := []string{
		"401", "403", "unauthorized", "forbidden", "invalid api key", "incorrect api key",
		"400", "404", "not found", "invalid model", "not supported", "model_not_found",
	}
	for _, p := range fatalPatterns {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}

	return ErrorClassRetryable
}

// newRetryBackOff is swapped in tests.
var newRetryBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// withRetry runs call, retrying up to retries extra times with exponential
// backoff while the failure is retryable and ctx is alive. The last call
// error is returned, never the context error.
func withRetry(ctx context.Context, retries int, call func() error) error {
	if retries < 0 {
		retries = 0
	}
	var last error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		last = call()
		if last != nil && (ClassifyError(last) != ErrorClassRetryable || ctx.Err() != nil) {
			return struct{}{}, backoff.Permanent(last)
		}
		return struct{}{}, last
	},
		backoff.WithBackOff(newRetryBackOff()),
		backoff.WithMaxTries(uint(retries)+1),
	)
	if err == nil {
		return nil
	}
	return last
}
