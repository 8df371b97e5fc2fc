// Copyright 2025 AdmitFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
		RetryIf:        IsRetryable,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	transient := &APIError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}

	calls := 0
	result, err := RetryWithBackoff(context.Background(), fastRetryConfig(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnFatalError(t *testing.T) {
	fatal := &APIError{StatusCode: http.StatusBadRequest, Message: "bad input"}

	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(), func(ctx context.Context) (string, error) {
		calls++
		return "", fatal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "fatal errors must not be retried")
}

func TestRetryExhaustsBudget(t *testing.T) {
	transient := &APIError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}

	calls := 0
	var retries []int
	cfg := fastRetryConfig()
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		retries = append(retries, attempt)
	}

	_, err := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "", transient
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
	assert.True(t, errors.Is(err, error(transient)) || err.Error() == "rate limited")
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	transient := &APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Second

	done := make(chan error, 1)
	go func() {
		_, err := RetryWithBackoff(ctx, cfg, func(ctx context.Context) (string, error) {
			return "", transient
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestBackoffIsBoundedAndGrows(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}

	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, time.Second, cfg.Backoff(10), "backoff is capped at MaxBackoff")
}

func TestIsRetryableClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"rate limit", &APIError{StatusCode: 429}, true},
		{"server error", &APIError{StatusCode: 503}, true},
		{"overloaded type", &APIError{Type: "overloaded_error"}, true},
		{"client error", &APIError{StatusCode: 400}, false},
		{"content filter", &APIError{StatusCode: 422, Type: "content_filter"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
