package pregel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NodePolicy configures the execution behavior of a specific node: timeout,
// retry, and idempotency key derivation. A node with a nil NodePolicy uses
// the graph's DefaultNodeTimeout and never retries.
type NodePolicy struct {
	// Timeout bounds a single invocation of the node's Callable. Zero
	// falls back to the graph's Options.DefaultNodeTimeout.
	Timeout time.Duration

	// RetryPolicy governs automatic retry of a failed invocation. Nil
	// means no retries.
	RetryPolicy *RetryPolicy

	// IdempotencyKeyFunc derives a stable key for this node's invocation
	// from its input. The executor does not read it and does not
	// deduplicate invocations.
	IdempotencyKeyFunc func(in any) string
}

// RetryPolicy configures automatic retry of a failing node invocation using
// exponential backoff with jitter.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of invocation attempts, including
	// the first. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay is the initial backoff interval.
	BaseDelay time.Duration

	// MaxDelay caps the backoff interval. Zero means no cap beyond
	// backoff's own default ceiling.
	MaxDelay time.Duration

	// Retryable decides whether an error should trigger another
	// attempt. Nil means no error is retryable, which makes
	// MaxAttempts > 1 a no-op.
	Retryable func(error) bool
}

// ErrInvalidRetryPolicy is returned by Validate when a RetryPolicy's fields
// are inconsistent.
var ErrInvalidRetryPolicy = &ConstructionError{Message: "invalid retry policy"}

// Validate checks MaxAttempts and the BaseDelay/MaxDelay relationship.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// backoffFor builds a bounded exponential backoff sequence from rp,
// wrapped so it never yields more than rp.MaxAttempts-1 retry intervals.
func backoffFor(rp *RetryPolicy) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if rp.BaseDelay > 0 {
		eb.InitialInterval = rp.BaseDelay
	}
	if rp.MaxDelay > 0 {
		eb.MaxInterval = rp.MaxDelay
	}
	eb.MaxElapsedTime = 0 // bounded by attempt count, not elapsed time
	retries := rp.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(eb, uint64(retries))
}

// runWithPolicy invokes fn, retrying per policy when it returns a retryable
// error. A nil policy runs fn exactly once.
func runWithPolicy(ctx context.Context, policy *NodePolicy, fn func(ctx context.Context) (any, error)) (any, error) {
	if policy == nil || policy.RetryPolicy == nil {
		return fn(ctx)
	}
	rp := policy.RetryPolicy
	if err := rp.Validate(); err != nil {
		return nil, err
	}

	var result any
	attempt := func() error {
		out, err := fn(ctx)
		if err != nil {
			if rp.Retryable != nil && rp.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = out
		return nil
	}

	bo := backoff.WithContext(backoffFor(rp), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		return nil, err
	}
	return result, nil
}
