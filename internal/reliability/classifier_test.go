package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = true, want false", code)
		}
	}
}

func TestIsTransientAbort(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("whisper request failed: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:443: connection refused"), true},
		{"auth failure", errors.New("status=401 body=invalid api key"), false},
		{"quota", errors.New("status=429 body=rate limited"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransientAbort(tc.err); got != tc.want {
				t.Fatalf("IsTransientAbort(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryOnceRetriesOnlyTransientAborts(t *testing.T) {
	calls := 0
	err := RetryOnce(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("tts request failed: %w", context.DeadlineExceeded)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryOnce error = %v, want nil after retry", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryOnceDoesNotRetryDefinitiveFailures(t *testing.T) {
	calls := 0
	wantErr := errors.New("status=401 body=invalid api key")
	err := RetryOnce(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("RetryOnce error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryOnceStopsAtOneRetry(t *testing.T) {
	calls := 0
	err := RetryOnce(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, context.DeadlineExceeded)
	})
	if err == nil {
		t.Fatalf("RetryOnce error = nil, want error")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want exactly 2", calls)
	}
}
