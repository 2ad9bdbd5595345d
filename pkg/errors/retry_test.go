package errors

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: 0}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		return NewValidationError("url", "bad")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetry(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", NewADOErrorWithStatus("GetWorkItem", "1", 429, "slow down")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		return NewAIErrorWithStatus("anthropic", "Chat", 503, "overloaded")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if !IsAIError(err) {
		t.Error("final error should still carry the AIError")
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(), func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRetryDelay_HonorsRetryAfter(t *testing.T) {
	cfg := fastRetry()
	err := &ADOError{Operation: "x", StatusCode: 429, Retryable: true, RetryAfter: 2 * time.Millisecond}
	if d := retryDelay(err, cfg, 0); d != 2*time.Millisecond {
		t.Errorf("delay = %v, want 2ms", d)
	}

	err.RetryAfter = time.Hour
	if d := retryDelay(err, cfg, 0); d != cfg.MaxDelay {
		t.Errorf("delay = %v, want capped %v", d, cfg.MaxDelay)
	}
}

func TestCalculateBackoff_Capped(t *testing.T) {
	d := CalculateBackoff(time.Second, 4*time.Second, 10, 0)
	if d != 4*time.Second {
		t.Errorf("CalculateBackoff = %v, want 4s", d)
	}
}
