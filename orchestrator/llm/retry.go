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
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior for provider calls.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int

	// InitialBackoff is the wait time before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum wait time between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier for exponential backoff.
	BackoffFactor float64

	// Jitter adds randomness to avoid thundering herd (0.0-1.0).
	Jitter float64

	// RetryIf determines if an error should be retried.
	RetryIf func(err error) bool

	// OnRetry is invoked before each retry wait with the failed attempt
	// number (1-based), the error, and the chosen backoff.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryConfig returns the default retry policy: three attempts
// with exponential backoff and jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.2,
		RetryIf:        IsRetryable,
	}
}

// Backoff returns the wait duration after the given failed attempt
// (1-based), with jitter applied.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	backoff := c.InitialBackoff * time.Duration(pow(c.BackoffFactor, float64(attempt-1)))
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}

	if c.Jitter > 0 {
		jitterDelta := float64(backoff) * c.Jitter
		jitter := (rand.Float64() * 2 * jitterDelta) - jitterDelta
		backoff = time.Duration(float64(backoff) + jitter)
	}

	return backoff
}

// RetryWithBackoff executes fn with exponential backoff retry.
func RetryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if config.RetryIf != nil && !config.RetryIf(err) {
			return zero, err
		}

		if attempt >= attempts {
			break
		}

		backoff := config.Backoff(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, backoff)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return zero, lastErr
}

// pow calculates base^exp for floats without pulling in math for the
// integer exponents used here.
func pow(base, exp float64) float64 {
	result := 1.0
	for exp > 0 {
		if int(exp)%2 == 1 {
			result *= base
		}
		exp = float64(int(exp) / 2)
		base *= base
	}
	return result
}
