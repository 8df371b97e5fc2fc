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

import "time"

// ProviderType identifies the type of LLM provider. Standard types are
// defined as constants, but custom types can be used for self-hosted
// providers.
type ProviderType string

const (
	// ProviderTypeOpenAI represents OpenAI-compatible chat completion APIs.
	ProviderTypeOpenAI ProviderType = "openai"

	// ProviderTypeGemini represents Google's Gemini models.
	ProviderTypeGemini ProviderType = "gemini"

	// ProviderTypeMock is an in-process provider for tests.
	ProviderTypeMock ProviderType = "mock"
)

// CompletionRequest encapsulates all parameters for an LLM completion.
// This is the unified request type used across all providers.
type CompletionRequest struct {
	// Prompt is the user's input text.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system message that sets behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits the response length. 0 means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64 `json:"temperature,omitempty"`

	// TopP is the nucleus sampling parameter.
	TopP float64 `json:"top_p,omitempty"`

	// Model overrides the provider's default model.
	Model string `json:"model,omitempty"`

	// StopSequences are strings that cause generation to stop.
	StopSequences []string `json:"stop_sequences,omitempty"`

	// Metadata contains provider-specific options.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CompletionResponse contains the result of an LLM completion.
type CompletionResponse struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Model is the actual model used (may differ from requested).
	Model string `json:"model"`

	// Usage contains token usage statistics.
	Usage UsageStats `json:"usage"`

	// Latency is the time taken to generate the response.
	Latency time.Duration `json:"latency"`

	// FinishReason indicates why generation stopped.
	// Common values: "stop", "max_tokens", "content_filter".
	FinishReason string `json:"finish_reason,omitempty"`
}

// UsageStats tracks token usage for billing and monitoring.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// HealthStatus represents the health state of a provider.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheckResult contains detailed health check information.
type HealthCheckResult struct {
	Status      HealthStatus  `json:"status"`
	Latency     time.Duration `json:"latency"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
}
