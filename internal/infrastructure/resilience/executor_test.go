package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
		BreakerEnabled: false,
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	e := NewExecutor(fastPolicy())
	calls := 0

	err := e.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(error) Outcome {
		return Outcome{Retry: true, CountAsFailure: true}
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteDoesNotRetryPermanentErrors(t *testing.T) {
	e := NewExecutor(fastPolicy())
	calls := 0
	permanent := errors.New("bad request")

	err := e.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return permanent
	}, func(error) Outcome {
		return Outcome{Retry: false, CountAsFailure: false}
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestExecuteStopsAtMaxAttempts(t *testing.T) {
	e := NewExecutor(fastPolicy())
	calls := 0

	err := e.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return errors.New("transient")
	}, func(error) Outcome {
		return Outcome{Retry: true, CountAsFailure: true}
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	e := NewExecutor(fastPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Execute(ctx, "op", func(context.Context) error {
		t.Fatalf("callback should not run with canceled context")
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	p := fastPolicy()
	p.BreakerEnabled = true
	p.BreakerMinRequests = 2
	p.BreakerFailureRatio = 0.5
	p.BreakerCooldown = time.Minute
	p.MaxAttempts = 1
	e := NewExecutor(p)

	classify := func(error) Outcome { return Outcome{Retry: false, CountAsFailure: true} }
	for i := 0; i < 3; i++ {
		_ = e.Execute(context.Background(), "flaky", func(context.Context) error {
			return errors.New("down")
		}, classify)
	}

	err := e.Execute(context.Background(), "flaky", func(context.Context) error {
		return nil
	}, classify)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}
