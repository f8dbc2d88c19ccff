package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

// ProviderError is a structured error from an upstream AI provider. Status
// carries the HTTP status the provider answered with; Code is the stable
// machine code the error maps to on our API surface.
type ProviderError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("provider error (status %d, code %s): %s: %s", e.Status, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("provider error (status %d, code %s): %s", e.Status, e.Code, e.Message)
}

// AsProviderError unwraps err into a ProviderError if there is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err is worth another attempt. Rate limiting
// and server-side failures are transient; everything else is terminal.
// The message sniffing covers providers that answer 200-shaped bodies with
// an error message instead of a proper status.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := AsProviderError(err); ok {
		if pe.Status == 429 || pe.Status >= 500 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "internal") ||
		strings.Contains(msg, "server")
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Status == 429
}

// IsUpstreamFailure reports whether err is an upstream 5xx.
func IsUpstreamFailure(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Status >= 500
}

// RetryPolicy runs provider calls with a fixed backoff schedule and a per
// attempt timeout. len(Backoffs)+1 attempts total, so the default schedule
// of [250ms, 750ms] gives three calls.
type RetryPolicy struct {
	Backoffs    []time.Duration
	CallTimeout time.Duration
}

// Do runs op through the policy. Only retryable errors consume the backoff
// schedule; terminal errors and context cancellation return immediately.
// The error returned is the one from the last attempt. A per-attempt timeout
// counts as transient while the caller's context is still live; one that
// survives every attempt comes back as an upstream ProviderError.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := uint(len(p.Backoffs) + 1)
	err := retry.Do(
		func() error {
			callCtx := ctx
			if p.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
				defer cancel()
			}
			return op(callCtx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return true
			}
			return IsRetryable(err)
		}),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			if int(n) < len(p.Backoffs) {
				return p.Backoffs[n]
			}
			return p.Backoffs[len(p.Backoffs)-1]
		}),
	)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &ProviderError{
			Status:  504,
			Code:    "PROVIDER_TIMEOUT",
			Message: fmt.Sprintf("provider call exceeded %v on every attempt", p.CallTimeout),
		}
	}
	return err
}
