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
	"sync"
	"time"
)

// MockProvider is an in-process Provider for tests. Responses can be
// scripted per call; once the script is exhausted the last entry repeats.
type MockProvider struct {
	name string

	mu      sync.Mutex
	script  []MockResult
	calls   int
	lastReq CompletionRequest
}

// MockResult is one scripted outcome for a MockProvider call.
type MockResult struct {
	Content string
	Err     error
}

// Compile-time interface compliance check.
var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock provider that always returns content.
func NewMockProvider(name, content string) *MockProvider {
	return &MockProvider{name: name, script: []MockResult{{Content: content}}}
}

// NewScriptedProvider creates a mock provider that replays the given
// outcomes in order.
func NewScriptedProvider(name string, script ...MockResult) *MockProvider {
	return &MockProvider{name: name, script: script}
}

// Name returns the provider instance name.
func (m *MockProvider) Name() string { return m.name }

// Type returns ProviderTypeMock.
func (m *MockProvider) Type() ProviderType { return ProviderTypeMock }

// Complete replays the next scripted result.
func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.calls++
	m.lastReq = req

	res := m.script[idx]
	if res.Err != nil {
		return nil, res.Err
	}

	return &CompletionResponse{
		Content:      res.Content,
		Model:        req.Model,
		Usage:        UsageStats{PromptTokens: len(req.Prompt) / 4, CompletionTokens: len(res.Content) / 4},
		FinishReason: "stop",
	}, nil
}

// HealthCheck always reports healthy.
func (m *MockProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	return &HealthCheckResult{Status: HealthStatusHealthy, LastChecked: time.Now()}, nil
}

// Calls returns how many times Complete has been invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request seen by the provider.
func (m *MockProvider) LastRequest() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}
