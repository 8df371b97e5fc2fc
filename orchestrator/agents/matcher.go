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
	"sort"

	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/shared/types"
)

// Matcher ranks catalog programs against a student profile.
type Matcher struct {
	provider llm.Provider
}

var _ Adapter = (*Matcher)(nil)

// NewMatcher creates the program matcher adapter.
func NewMatcher(provider llm.Provider) *Matcher {
	return &Matcher{provider: provider}
}

// AgentType identifies this adapter.
func (m *Matcher) AgentType() types.AgentType {
	return types.AgentMatcher
}

// Invoke ranks the candidate programs. Model output is joined back to the
// catalog entries; matches referencing unknown program IDs are fatal
// because the shortlist must stay grounded in the provided catalog.
func (m *Matcher) Invoke(ctx context.Context, input Input) (json.RawMessage, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	p := input.Match

	resp, err := m.provider.Complete(ctx, completionRequest(matcherSystemPrompt, matcherPrompt(p), p.Sampling))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Matches []ProgramMatch `json:"matches"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &parsed); err != nil {
		return nil, fatalOutput("matcher output is not valid JSON: %v", err)
	}
	if len(parsed.Matches) == 0 {
		return nil, fatalOutput("matcher produced no matches")
	}

	catalog := make(map[string]types.CatalogProgram, len(p.Programs))
	for _, prog := range p.Programs {
		catalog[prog.ID] = prog
	}

	result := ProgramMatches{Matches: make([]ProgramMatch, 0, len(parsed.Matches))}
	for _, match := range parsed.Matches {
		prog, ok := catalog[match.ProgramID]
		if !ok {
			return nil, fatalOutput("matcher referenced unknown program id %q", match.ProgramID)
		}
		if match.Score < 0 || match.Score > 100 {
			return nil, fatalOutput("matcher score %.1f for %q out of range", match.Score, match.ProgramID)
		}
		match.Name = prog.Name
		match.University = prog.University
		result.Matches = append(result.Matches, match)
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Score > result.Matches[j].Score
	})

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode program matches: %w", err)
	}
	return out, nil
}
