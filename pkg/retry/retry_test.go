package retry

import (
	"context"
	"testing"
	"time"

	apperrors "skyfleet/pkg/errors"
)

func testConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testConfig(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testConfig(), func() error {
		attempts++
		if attempts < 3 {
			return apperrors.NewTransportError("connection reset")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testConfig(), func() error {
		attempts++
		return apperrors.NewProtocolError("malformed ack")
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got: %d", attempts)
	}
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	cfg := testConfig()
	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return apperrors.NewTimeoutError("ack wait")
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != cfg.MaxAttempts+1 {
		t.Errorf("Expected %d attempts, got: %d", cfg.MaxAttempts+1, attempts)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, testConfig(), func() error {
		attempts++
		return apperrors.NewTransportError("unreachable")
	})

	if err == nil {
		t.Fatal("Expected cancellation error, got nil")
	}
	if attempts != 0 {
		t.Errorf("Expected 0 attempts after cancelled context, got: %d", attempts)
	}
}

func TestRetry_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return apperrors.NewTransportError("down")
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt when disabled, got: %d", attempts)
	}
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), testConfig(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", apperrors.NewTransportError("flaky")
		}
		return "session-token", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got != "session-token" {
		t.Errorf("Expected result %q, got %q", "session-token", got)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got: %d", attempts)
	}
}

func TestCalculateDelay_ExponentialAndCapped(t *testing.T) {
	cfg := testConfig()

	d0 := calculateDelay(cfg, 0)
	d1 := calculateDelay(cfg, 1)
	if d1 != 2*d0 {
		t.Errorf("Expected delay to double, got %v then %v", d0, d1)
	}

	d10 := calculateDelay(cfg, 10)
	if d10 > cfg.MaxDelay {
		t.Errorf("Expected delay capped at %v, got %v", cfg.MaxDelay, d10)
	}
}
