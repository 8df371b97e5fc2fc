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
	"strings"

	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/shared/types"
)

// minEssayWords guards against truncated or refused generations reaching
// the artifact cache.
const minEssayWords = 50

// Generator produces application essay drafts from a student profile and
// program context.
type Generator struct {
	provider llm.Provider
}

var _ Adapter = (*Generator)(nil)

// NewGenerator creates the essay generator adapter.
func NewGenerator(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// AgentType identifies this adapter.
func (g *Generator) AgentType() types.AgentType {
	return types.AgentGenerator
}

// Invoke generates one essay draft. The provider returns prose; the
// adapter wraps it into the EssayDraft artifact payload.
func (g *Generator) Invoke(ctx context.Context, input Input) (json.RawMessage, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	p := input.Generate

	resp, err := g.provider.Complete(ctx, completionRequest(generatorSystemPrompt, generatorPrompt(p), p.Sampling))
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Content)
	words := len(strings.Fields(text))
	if words < minEssayWords {
		return nil, fatalOutput("generated essay too short: %d words", words)
	}

	draft := EssayDraft{
		Text:      text,
		WordCount: words,
		Program:   p.ProgramName,
		Topic:     p.Topic,
	}

	payload, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("failed to encode essay draft: %w", err)
	}
	return payload, nil
}
