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
	"math"

	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/shared/types"
)

// Scorer evaluates essay drafts against the four IELTS writing criteria.
type Scorer struct {
	provider llm.Provider
}

var _ Adapter = (*Scorer)(nil)

// NewScorer creates the essay scorer adapter.
func NewScorer(provider llm.Provider) *Scorer {
	return &Scorer{provider: provider}
}

// AgentType identifies this adapter.
func (s *Scorer) AgentType() types.AgentType {
	return types.AgentScorer
}

// Invoke scores one essay. Malformed or out-of-range provider output is a
// fatal failure: retrying the same prompt will not fix a schema violation.
func (s *Scorer) Invoke(ctx context.Context, input Input) (json.RawMessage, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	p := input.Score

	resp, err := s.provider.Complete(ctx, completionRequest(scorerSystemPrompt, scorerPrompt(p), p.Sampling))
	if err != nil {
		return nil, err
	}

	var score EssayScore
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &score); err != nil {
		return nil, fatalOutput("scorer output is not valid JSON: %v", err)
	}

	dims := []struct {
		name string
		dim  DimensionScore
	}{
		{"task_achievement", score.TaskAchievement},
		{"coherence_cohesion", score.CoherenceCohesion},
		{"lexical_resource", score.LexicalResource},
		{"grammatical_accuracy", score.GrammaticalAccuracy},
	}

	sum := 0.0
	for _, d := range dims {
		if d.dim.Band < 0 || d.dim.Band > 9 {
			return nil, fatalOutput("scorer band %s=%.1f out of range", d.name, d.dim.Band)
		}
		sum += d.dim.Band
	}

	// Half-band rounding matches IELTS overall band rules. A missing or
	// inconsistent overall_band from the model is recomputed, not rejected.
	overall := roundHalfBand(sum / float64(len(dims)))
	score.OverallBand = overall

	payload, err := json.Marshal(score)
	if err != nil {
		return nil, fmt.Errorf("failed to encode essay score: %w", err)
	}
	return payload, nil
}

// roundHalfBand rounds to the nearest 0.5.
func roundHalfBand(v float64) float64 {
	return math.Round(v*2) / 2
}
