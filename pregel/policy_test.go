package pregel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_Validate(t *testing.T) {
	bad := &RetryPolicy{MaxAttempts: 0}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRetryPolicy) {
		t.Fatalf("expected ErrInvalidRetryPolicy for zero MaxAttempts, got %v", err)
	}

	good := &RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestRunWithPolicy_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	policy := &NodePolicy{
		RetryPolicy: &RetryPolicy{
			MaxAttempts: 5,
			BaseDelay:   time.Millisecond,
			Retryable:   func(error) bool { return true },
		},
	}

	out, err := runWithPolicy(context.Background(), policy, func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(string) != "ok" {
		t.Fatalf("expected ok, got %v", out)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRunWithPolicy_RetryableFalseStopsImmediately(t *testing.T) {
	attempts := 0
	policy := &NodePolicy{
		RetryPolicy: &RetryPolicy{
			MaxAttempts: 5,
			BaseDelay:   time.Millisecond,
			Retryable:   func(error) bool { return false },
		},
	}

	_, err := runWithPolicy(context.Background(), policy, func(ctx context.Context) (any, error) {
		attempts++
		return nil, errors.New("permanent")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable error, got %d", attempts)
	}
}

func TestRunWithPolicy_NoPolicyRunsOnce(t *testing.T) {
	attempts := 0
	_, err := runWithPolicy(context.Background(), nil, func(ctx context.Context) (any, error) {
		attempts++
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt with no policy, got %d", attempts)
	}
}
