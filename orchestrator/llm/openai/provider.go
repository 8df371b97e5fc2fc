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

// Package openai provides an LLM provider implementation for OpenAI-compatible
// chat completion APIs. Any endpoint speaking the /v1/chat/completions
// protocol (OpenAI, Azure front-ends, local gateways) can back it.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"admitflow/platform/orchestrator/llm"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint
	DefaultBaseURL = "https://api.openai.com"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 120 * time.Second

	// DefaultMaxTokens is the default max tokens for completions
	DefaultMaxTokens = 4096

	// DefaultModel is used when the request does not specify one
	DefaultModel = "gpt-4o-mini"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements llm.Provider for OpenAI-compatible APIs
type Provider struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	client  HTTPClient
	healthy bool
	mu      sync.RWMutex
}

// Config contains configuration for the OpenAI provider
type Config struct {
	Name    string        // Optional: instance name (default: "openai")
	APIKey  string        // Required: API key
	BaseURL string        // Optional: API base URL
	Model   string        // Optional: default model
	Timeout time.Duration // Optional: HTTP timeout (default: 120s)
	Client  HTTPClient    // Optional: custom HTTP client (tests)
}

// Compile-time interface compliance check.
var _ llm.Provider = (*Provider)(nil)

// NewProvider creates a new OpenAI provider instance
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	if cfg.Name == "" {
		cfg.Name = "openai"
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Provider{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  client,
		healthy: true,
	}, nil
}

// Name returns the provider instance name
func (p *Provider) Name() string {
	return p.name
}

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeOpenAI
}

// chatRequest is the wire format for /v1/chat/completions
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete generates a completion for the given request
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	apiReq := chatRequest{
		Model:     model,
		MaxTokens: maxTokens,
	}

	if req.SystemPrompt != "" {
		apiReq.Messages = append(apiReq.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	apiReq.Messages = append(apiReq.Messages, chatMessage{Role: "user", Content: req.Prompt})

	// Temperature 0.0 is valid (deterministic); only negative means unset
	if req.Temperature >= 0 {
		temperature := req.Temperature
		apiReq.Temperature = &temperature
	}

	if req.TopP > 0 {
		topP := req.TopP
		apiReq.TopP = &topP
	}

	if len(req.StopSequences) > 0 {
		apiReq.Stop = req.StopSequences
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llm.APIError{Message: fmt.Sprintf("openai API error: %v", err), Type: "network_error"}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			p.setHealthy(false)
		}
		return nil, p.parseAPIError(resp.StatusCode, body)
	}

	p.setHealthy(true)

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &llm.APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to decode response: %v", err),
			Type:       "invalid_response_error",
		}
	}

	if len(apiResp.Choices) == 0 {
		return nil, &llm.APIError{
			StatusCode: resp.StatusCode,
			Message:    "openai response contained no choices",
			Type:       "invalid_response_error",
		}
	}

	choice := apiResp.Choices[0]
	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		Model:        apiResp.Model,
		FinishReason: choice.FinishReason,
		Usage: llm.UsageStats{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// parseAPIError converts a non-200 response into an llm.APIError
func (p *Provider) parseAPIError(statusCode int, body []byte) error {
	apiErr := &llm.APIError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("openai API returned status %d", statusCode),
	}

	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Type
	}

	return apiErr
}

// HealthCheck verifies API connectivity by listing models
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthCheckResult, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return &llm.HealthCheckResult{
			Status:      llm.HealthStatusUnhealthy,
			Latency:     time.Since(start),
			Message:     err.Error(),
			LastChecked: time.Now(),
		}, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	status := llm.HealthStatusHealthy
	message := ""
	if resp.StatusCode != http.StatusOK {
		status = llm.HealthStatusUnhealthy
		message = fmt.Sprintf("status %d", resp.StatusCode)
		p.setHealthy(false)
	} else {
		p.setHealthy(true)
	}

	return &llm.HealthCheckResult{
		Status:      status,
		Latency:     time.Since(start),
		Message:     message,
		LastChecked: time.Now(),
	}, nil
}

// setHealthy updates the provider health status
func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}
