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

package orchestrator

import (
	"errors"
	"fmt"
)

// ErrorCode classifies lifecycle failures for callers and for the audit
// trail. Retryable codes are contained inside the job engine and only
// surface once the retry budget is exhausted.
type ErrorCode string

const (
	// ErrCodeVersionConflict means the caller presented a stale version.
	// The caller must re-fetch the application and retry the command.
	ErrCodeVersionConflict ErrorCode = "version_conflict"

	// ErrCodeIllegalTransition means the command is not legal from the
	// application's current state. Never retried.
	ErrCodeIllegalTransition ErrorCode = "illegal_transition"

	// ErrCodeProviderRetryable is a transient agent failure (network,
	// rate limit, 5xx, timeout). Retried per policy inside the engine.
	ErrCodeProviderRetryable ErrorCode = "provider_retryable"

	// ErrCodeProviderFatal is a bad or unsafe agent output. Never retried;
	// blocks the application.
	ErrCodeProviderFatal ErrorCode = "provider_fatal"

	// ErrCodeLeaseTimeout means a job exceeded its allotted time without
	// completing. Treated as retryable up to the attempt budget.
	ErrCodeLeaseTimeout ErrorCode = "lease_timeout"

	// ErrCodeCacheCorruption means a stored artifact failed its integrity
	// check on read. Treated as a miss; logged as an anomaly.
	ErrCodeCacheCorruption ErrorCode = "cache_corruption"

	// ErrCodeNotFound means the referenced application or job does not exist.
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeInternal is an infrastructure failure (store, encoding).
	ErrCodeInternal ErrorCode = "internal"
)

// LifecycleError is the typed error surfaced by the state machine and the
// job engine.
type LifecycleError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *LifecycleError) Unwrap() error {
	return e.Cause
}

// newError builds a LifecycleError without a cause.
func newError(code ErrorCode, format string, args ...any) *LifecycleError {
	return &LifecycleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrapError builds a LifecycleError around a cause.
func wrapError(code ErrorCode, cause error, format string, args ...any) *LifecycleError {
	return &LifecycleError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the lifecycle error code, or ErrCodeInternal for
// unclassified errors.
func CodeOf(err error) ErrorCode {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given lifecycle error code.
func IsCode(err error, code ErrorCode) bool {
	var le *LifecycleError
	return errors.As(err, &le) && le.Code == code
}
