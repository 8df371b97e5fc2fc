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

import "context"

// Provider is the unified interface for all LLM providers.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the unique identifier for this provider instance.
	// This is used for routing, logging, and metrics.
	Name() string

	// Type returns the provider type (e.g., "openai", "mock").
	Type() ProviderType

	// Complete generates a completion for the given request.
	// The context carries the bounded per-attempt timeout set by the
	// orchestrator; implementations must honor cancellation.
	// Failures are returned as *APIError so callers can classify them.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// HealthCheck verifies the provider is operational.
	HealthCheck(ctx context.Context) (*HealthCheckResult, error)
}
