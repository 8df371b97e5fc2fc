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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/shared/types"
)

func testProfile() types.StudentProfile {
	return types.StudentProfile{
		FullName:     "Mina Park",
		Nationality:  "South Korea",
		GPA:          3.7,
		DegreeTarget: "Master's",
		Major:        "Computer Science",
		TestScores:   map[string]float64{"IELTS": 7.5, "GRE": 325},
		Background:   "Built a tutoring platform used by 2,000 students.",
	}
}

func generateInput() Input {
	return Input{
		Agent: types.AgentGenerator,
		Generate: &types.GenerateEssayPayload{
			Profile:     testProfile(),
			ProgramName: "MSc Computer Science at ETH Zurich",
			Topic:       "Why this program",
			Sampling:    types.Sampling{Model: "gpt-4o-mini", Temperature: 0.7},
		},
	}
}

func TestInputValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   Input
		wantErr bool
	}{
		{"valid generate", generateInput(), false},
		{"missing payload", Input{Agent: types.AgentGenerator}, true},
		{"wrong variant", Input{Agent: types.AgentScorer, Generate: generateInput().Generate}, true},
		{"empty essay text", Input{Agent: types.AgentScorer, Score: &types.ScoreEssayPayload{EssayText: "  "}}, true},
		{"no catalog programs", Input{Agent: types.AgentMatcher, Match: &types.MatchProgramsPayload{Profile: testProfile()}}, true},
		{"unknown agent", Input{Agent: types.AgentType("oracle")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeIsDeterministicAndSamplingSensitive(t *testing.T) {
	a, err := generateInput().Normalize()
	require.NoError(t, err)
	b, err := generateInput().Normalize()
	require.NoError(t, err)
	assert.Equal(t, a, b, "same input must normalize identically")

	hot := generateInput()
	hot.Generate.Sampling.Temperature = 0.9
	c, err := hot.Normalize()
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "sampling parameters are part of the normalized input")
}

func TestGeneratorProducesDraft(t *testing.T) {
	essay := strings.Repeat("I have always been drawn to distributed systems. ", 20)
	provider := llm.NewMockProvider("mock", essay)
	gen := NewGenerator(provider)

	payload, err := gen.Invoke(context.Background(), generateInput())
	require.NoError(t, err)

	var draft EssayDraft
	require.NoError(t, json.Unmarshal(payload, &draft))
	assert.Equal(t, "MSc Computer Science at ETH Zurich", draft.Program)
	assert.GreaterOrEqual(t, draft.WordCount, minEssayWords)

	req := provider.LastRequest()
	assert.Contains(t, req.Prompt, "Mina Park")
	assert.Contains(t, req.Prompt, "Why this program")
	assert.Equal(t, "gpt-4o-mini", req.Model)
}

func TestGeneratorRejectsTruncatedOutput(t *testing.T) {
	gen := NewGenerator(llm.NewMockProvider("mock", "I refuse."))

	_, err := gen.Invoke(context.Background(), generateInput())
	require.Error(t, err)
	assert.False(t, llm.IsRetryable(err), "short output is fatal, not retryable")
}

func TestScorerParsesRubric(t *testing.T) {
	content := "```json\n" + `{
		"task_achievement": {"band": 7, "feedback": "addresses the prompt"},
		"coherence_cohesion": {"band": 6.5, "feedback": "mostly well linked"},
		"lexical_resource": {"band": 7, "feedback": "varied vocabulary"},
		"grammatical_accuracy": {"band": 6, "feedback": "some slips"},
		"overall_band": 9,
		"summary": "a solid draft"
	}` + "\n```"
	scorer := NewScorer(llm.NewMockProvider("mock", content))

	payload, err := scorer.Invoke(context.Background(), Input{
		Agent: types.AgentScorer,
		Score: &types.ScoreEssayPayload{EssayText: "An essay about distributed systems."},
	})
	require.NoError(t, err)

	var score EssayScore
	require.NoError(t, json.Unmarshal(payload, &score))
	assert.InDelta(t, 7.0, score.TaskAchievement.Band, 0.001)
	// (7 + 6.5 + 7 + 6) / 4 = 6.625 rounds to 6.5; the model's inflated
	// overall_band is recomputed from the dimensions.
	assert.InDelta(t, 6.5, score.OverallBand, 0.001)
}

func TestScorerRejectsBadOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "Overall this essay deserves a 7."},
		{"band out of range", `{"task_achievement":{"band":11},"coherence_cohesion":{"band":6},"lexical_resource":{"band":6},"grammatical_accuracy":{"band":6}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := NewScorer(llm.NewMockProvider("mock", tt.content))
			_, err := scorer.Invoke(context.Background(), Input{
				Agent: types.AgentScorer,
				Score: &types.ScoreEssayPayload{EssayText: "text"},
			})
			require.Error(t, err)
			assert.False(t, llm.IsRetryable(err))
		})
	}
}

func TestRoundHalfBand(t *testing.T) {
	assert.InDelta(t, 6.5, roundHalfBand(6.625), 0.001)
	assert.InDelta(t, 7.0, roundHalfBand(6.875), 0.001)
	assert.InDelta(t, 6.0, roundHalfBand(6.1), 0.001)
}

func TestParserNormalizesChecklist(t *testing.T) {
	content := `{"items":[
		{"description":"Two recommendation letters","category":"Document","mandatory":true},
		{"description":"IELTS 6.5 or higher","category":"test","mandatory":true},
		{"description":"Optional portfolio","category":"artwork","mandatory":false}
	]}`
	parser := NewParser(llm.NewMockProvider("mock", content))

	payload, err := parser.Invoke(context.Background(), Input{
		Agent: types.AgentParser,
		Parse: &types.ParseRequirementsPayload{ProgramName: "MSc CS", RawText: "Applicants must submit..."},
	})
	require.NoError(t, err)

	var checklist RequirementChecklist
	require.NoError(t, json.Unmarshal(payload, &checklist))
	require.Len(t, checklist.Items, 3)
	assert.Equal(t, "MSc CS", checklist.ProgramName)
	assert.Equal(t, CategoryDocument, checklist.Items[0].Category)
	assert.Equal(t, CategoryTest, checklist.Items[1].Category)
	assert.Equal(t, CategoryOther, checklist.Items[2].Category, "unknown categories fold into other")
}

func TestParserRejectsEmptyChecklist(t *testing.T) {
	parser := NewParser(llm.NewMockProvider("mock", `{"items":[]}`))

	_, err := parser.Invoke(context.Background(), Input{
		Agent: types.AgentParser,
		Parse: &types.ParseRequirementsPayload{ProgramName: "MSc CS", RawText: "text"},
	})
	require.Error(t, err)
	assert.False(t, llm.IsRetryable(err))
}

func matchInput() Input {
	return Input{
		Agent: types.AgentMatcher,
		Match: &types.MatchProgramsPayload{
			Profile: testProfile(),
			Programs: []types.CatalogProgram{
				{ID: "p1", Name: "MSc CS", University: "ETH Zurich", MinGPA: 3.5},
				{ID: "p2", Name: "MSc SE", University: "TU Delft", MinGPA: 3.0},
			},
		},
	}
}

func TestMatcherRanksAndJoinsCatalog(t *testing.T) {
	content := `{"matches":[
		{"program_id":"p2","score":71,"likelihood":"high","rationale":"safe fit"},
		{"program_id":"p1","score":88,"likelihood":"medium","rationale":"strong profile"}
	]}`
	matcher := NewMatcher(llm.NewMockProvider("mock", content))

	payload, err := matcher.Invoke(context.Background(), matchInput())
	require.NoError(t, err)

	var matches ProgramMatches
	require.NoError(t, json.Unmarshal(payload, &matches))
	require.Len(t, matches.Matches, 2)
	assert.Equal(t, "p1", matches.Matches[0].ProgramID, "ranked best first")
	assert.Equal(t, "ETH Zurich", matches.Matches[0].University, "joined from catalog")
}

func TestMatcherRejectsUnknownProgram(t *testing.T) {
	matcher := NewMatcher(llm.NewMockProvider("mock", `{"matches":[{"program_id":"ghost","score":50}]}`))

	_, err := matcher.Invoke(context.Background(), matchInput())
	require.Error(t, err)
	assert.False(t, llm.IsRetryable(err))
	assert.Contains(t, err.Error(), "ghost")
}

func TestProviderErrorsPassThrough(t *testing.T) {
	transient := &llm.APIError{StatusCode: 503, Message: "overloaded"}
	gen := NewGenerator(llm.NewScriptedProvider("mock", llm.MockResult{Err: transient}))

	_, err := gen.Invoke(context.Background(), generateInput())
	require.Error(t, err)
	assert.True(t, llm.IsRetryable(err), "transient provider errors stay retryable for the engine")
}

func TestRegistryCoversAllAgents(t *testing.T) {
	reg := NewRegistry(llm.NewMockProvider("mock", "x"))

	for _, agent := range []types.AgentType{types.AgentGenerator, types.AgentScorer, types.AgentParser, types.AgentMatcher} {
		adapter, err := reg.ForType(agent)
		require.NoError(t, err)
		assert.Equal(t, agent, adapter.AgentType())
	}

	_, err := reg.ForType(types.AgentType("oracle"))
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
