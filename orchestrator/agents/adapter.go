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

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/shared/types"
)

// Input is the tagged variant the orchestrator hands to an adapter.
// Exactly one payload field matching Agent must be set; Validate enforces
// this once at the orchestrator boundary so each adapter body can assume
// a well-formed, strongly typed input.
type Input struct {
	Agent types.AgentType

	Generate *types.GenerateEssayPayload
	Score    *types.ScoreEssayPayload
	Parse    *types.ParseRequirementsPayload
	Match    *types.MatchProgramsPayload
}

// Validate checks that the variant matches the agent type and that the
// payload carries the minimum the agent needs.
func (in Input) Validate() error {
	switch in.Agent {
	case types.AgentGenerator:
		if in.Generate == nil {
			return fmt.Errorf("generator input requires a generate payload")
		}
		if in.Generate.Profile.FullName == "" {
			return fmt.Errorf("generator input requires a student profile")
		}
		if in.Generate.ProgramName == "" {
			return fmt.Errorf("generator input requires a program name")
		}
	case types.AgentScorer:
		if in.Score == nil {
			return fmt.Errorf("scorer input requires a score payload")
		}
		if strings.TrimSpace(in.Score.EssayText) == "" {
			return fmt.Errorf("scorer input requires essay text")
		}
	case types.AgentParser:
		if in.Parse == nil {
			return fmt.Errorf("parser input requires a parse payload")
		}
		if strings.TrimSpace(in.Parse.RawText) == "" {
			return fmt.Errorf("parser input requires raw requirement text")
		}
	case types.AgentMatcher:
		if in.Match == nil {
			return fmt.Errorf("matcher input requires a match payload")
		}
		if len(in.Match.Programs) == 0 {
			return fmt.Errorf("matcher input requires at least one catalog program")
		}
	default:
		return fmt.Errorf("unknown agent type: %q", in.Agent)
	}
	return nil
}

// Normalize returns the canonical byte form of the input used for
// fingerprinting. JSON marshaling is deterministic here: struct fields
// serialize in declaration order and map keys are sorted.
func (in Input) Normalize() ([]byte, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var payload any
	switch in.Agent {
	case types.AgentGenerator:
		payload = in.Generate
	case types.AgentScorer:
		payload = in.Score
	case types.AgentParser:
		payload = in.Parse
	case types.AgentMatcher:
		payload = in.Match
	}

	normalized, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s input: %w", in.Agent, err)
	}
	return normalized, nil
}

// Sampling returns the sampling parameters of the active variant.
func (in Input) Sampling() types.Sampling {
	switch in.Agent {
	case types.AgentGenerator:
		if in.Generate != nil {
			return in.Generate.Sampling
		}
	case types.AgentScorer:
		if in.Score != nil {
			return in.Score.Sampling
		}
	case types.AgentParser:
		if in.Parse != nil {
			return in.Parse.Sampling
		}
	case types.AgentMatcher:
		if in.Match != nil {
			return in.Match.Sampling
		}
	}
	return types.Sampling{}
}

// Adapter is the uniform capability wrapper around one external AI call.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// AgentType identifies which of the four capabilities this adapter is.
	AgentType() types.AgentType

	// Invoke runs one provider call and returns the artifact payload.
	// The context carries the orchestrator's bounded per-attempt timeout.
	Invoke(ctx context.Context, input Input) (json.RawMessage, error)
}

// Registry maps each agent type to its adapter. It is an explicit value
// injected into the orchestrator at construction, not process-wide state.
type Registry map[types.AgentType]Adapter

// NewRegistry builds the standard four-adapter registry over one provider.
func NewRegistry(provider llm.Provider) Registry {
	return Registry{
		types.AgentGenerator: NewGenerator(provider),
		types.AgentScorer:    NewScorer(provider),
		types.AgentParser:    NewParser(provider),
		types.AgentMatcher:   NewMatcher(provider),
	}
}

// ForType returns the adapter for an agent type.
func (r Registry) ForType(agent types.AgentType) (Adapter, error) {
	adapter, ok := r[agent]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for agent type %q", agent)
	}
	return adapter, nil
}

// fatalOutput builds the non-retryable error used for malformed or unsafe
// provider output. StatusCode 422 keeps it out of the retryable ranges.
func fatalOutput(format string, args ...any) error {
	return &llm.APIError{
		StatusCode: http.StatusUnprocessableEntity,
		Type:       "malformed_output",
		Message:    fmt.Sprintf(format, args...),
	}
}

// stripCodeFence removes a surrounding markdown code fence, which chat
// models frequently wrap JSON output in despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// completionRequest builds the provider request shared by all adapters.
func completionRequest(system, prompt string, sampling types.Sampling) llm.CompletionRequest {
	return llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: system,
		Model:        sampling.Model,
		Temperature:  sampling.Temperature,
		TopP:         sampling.TopP,
		MaxTokens:    sampling.MaxTokens,
	}
}
