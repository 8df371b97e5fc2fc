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
	"time"
)

// APIError represents a provider API error with retry classification.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return e.Message
}

// IsRetryable returns true if the error is transient: rate limits,
// server errors, and overload conditions. Content and validation
// failures are never retryable.
func (e *APIError) IsRetryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}

	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}

	switch e.Type {
	case "rate_limit_error", "server_error", "overloaded_error", "network_error":
		return true
	}

	return false
}

// IsRetryable determines if a provider error is transient. Timeouts are
// retryable; everything unclassified is treated as fatal so malformed or
// unsafe output is never retried blindly.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
