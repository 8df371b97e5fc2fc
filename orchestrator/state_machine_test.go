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
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admitflow/platform/orchestrator/agents"
	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/shared/types"
)

type machineFixture struct {
	machine    *StateMachine
	apps       *MemoryApplicationStore
	events     *EventLog
	eventStore *MemoryEventStore
	provider   *llm.MockProvider
}

func newMachineFixture(t *testing.T, script ...llm.MockResult) *machineFixture {
	t.Helper()
	if len(script) == 0 {
		script = []llm.MockResult{{Content: "unused"}}
	}

	log := newTestLogger()
	provider := llm.NewScriptedProvider("test", script...)
	apps := NewMemoryApplicationStore()
	eventStore := NewMemoryEventStore()
	events := NewEventLog(eventStore, log)
	cache := NewArtifactCache(NewMemoryArtifactStore(), log)
	engine := NewJobEngine(agents.NewRegistry(provider), cache, NewMemoryGuard(), events, NewMemoryJobStore(), fastEngineConfig(), log)

	return &machineFixture{
		machine:    NewStateMachine(apps, events, engine, cache, log),
		apps:       apps,
		events:     events,
		eventStore: eventStore,
		provider:   provider,
	}
}

func (f *machineFixture) seed(t *testing.T, app types.Application) types.Application {
	t.Helper()
	if app.ID == "" {
		app.ID = "app-seeded"
	}
	if app.Version == 0 {
		app.Version = 1
	}
	if app.Artifacts == nil {
		app.Artifacts = make(map[types.AgentType]string)
	}
	now := time.Now().UTC()
	app.CreatedAt, app.UpdatedAt = now, now
	require.NoError(t, f.apps.Create(context.Background(), app))
	return app
}

func testProfile() types.StudentProfile {
	return types.StudentProfile{
		FullName:     "Ada Chen",
		Nationality:  "Singapore",
		GPA:          3.8,
		DegreeTarget: "MSc",
		Major:        "Computer Science",
		TestScores:   map[string]float64{"IELTS": 7.0},
		Background:   "Built a peer tutoring platform used by 2000 students.",
	}
}

func essayContent() string {
	return strings.TrimSpace(strings.Repeat("I am deeply committed to advancing the study of distributed systems. ", 8))
}

func scorerContent() string {
	return `{
		"task_achievement": {"band": 7.0, "feedback": "addresses the prompt"},
		"coherence_cohesion": {"band": 6.5, "feedback": "mostly well linked"},
		"lexical_resource": {"band": 7.0, "feedback": "varied vocabulary"},
		"grammatical_accuracy": {"band": 6.0, "feedback": "some slips"},
		"summary": "a solid draft"
	}`
}

func parserContent() string {
	return `{"items": [
		{"description": "Submit official transcripts", "category": "document", "mandatory": true},
		{"description": "IELTS 6.5 overall", "category": "test", "mandatory": true}
	]}`
}

func matcherContent() string {
	return `{"matches": [
		{"program_id": "p1", "score": 82, "likelihood": "likely", "rationale": "strong GPA fit"},
		{"program_id": "p2", "score": 64, "likelihood": "reach", "rationale": "competitive intake"}
	]}`
}

func testCatalog() []types.CatalogProgram {
	return []types.CatalogProgram{
		{ID: "p1", Name: "MSc Computer Science", University: "NTU", Country: "Singapore", MinGPA: 3.5},
		{ID: "p2", Name: "MSc Artificial Intelligence", University: "NUS", Country: "Singapore", MinGPA: 3.7},
	}
}

func TestCreateApplication(t *testing.T) {
	f := newMachineFixture(t)

	app, err := f.machine.CreateApplication(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateDraft, app.State)
	assert.Equal(t, int64(1), app.Version)
	assert.Equal(t, "student-1", app.StudentID)
	assert.NotEmpty(t, app.ID)
	assert.Empty(t, app.Artifacts)
}

func TestRequestTransitionRejectsStaleVersion(t *testing.T) {
	f := newMachineFixture(t)
	app, err := f.machine.CreateApplication(context.Background(), "student-1")
	require.NoError(t, err)

	_, err = f.machine.RequestTransition(context.Background(), types.Command{
		Kind:            types.CommandCompleteProfile,
		ApplicationID:   app.ID,
		ExpectedVersion: 99,
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeVersionConflict))

	// Nothing changed, nothing was recorded.
	current, err := f.machine.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateDraft, current.State)
	assert.Equal(t, int64(1), current.Version)

	events, err := f.events.List(context.Background(), app.ID, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRequestTransitionRejectsIllegalCommand(t *testing.T) {
	f := newMachineFixture(t)
	app, err := f.machine.CreateApplication(context.Background(), "student-1")
	require.NoError(t, err)

	_, err = f.machine.RequestTransition(context.Background(), types.Command{
		Kind:            types.CommandArchive,
		ApplicationID:   app.ID,
		ExpectedVersion: 1,
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeIllegalTransition))
}

func TestRequestTransitionUnknownApplication(t *testing.T) {
	f := newMachineFixture(t)

	_, err := f.machine.RequestTransition(context.Background(), types.Command{
		Kind:            types.CommandCompleteProfile,
		ApplicationID:   "missing",
		ExpectedVersion: 1,
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeNotFound))
}

func TestFullLifecycleWalk(t *testing.T) {
	f := newMachineFixture(t,
		llm.MockResult{Content: essayContent()},
		llm.MockResult{Content: scorerContent()},
		llm.MockResult{Content: parserContent()},
		llm.MockResult{Content: matcherContent()},
	)
	ctx := context.Background()

	app, err := f.machine.CreateApplication(ctx, "student-1")
	require.NoError(t, err)

	app, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandCompleteProfile, ApplicationID: app.ID, ExpectedVersion: app.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateProfileReady, app.State)
	assert.Equal(t, int64(2), app.Version)

	// Generation enters EssayDrafting, then the artifact commit bumps again.
	app, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandStartEssayGeneration, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Generate: &types.GenerateEssayPayload{Profile: testProfile(), ProgramName: "MSc Computer Science", Topic: "Why this program"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateEssayDrafting, app.State)
	assert.Equal(t, int64(4), app.Version)
	require.Contains(t, app.Artifacts, types.AgentGenerator)

	// Scoring resolves the essay text from the generator artifact.
	app, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandSubmitEssayScoring, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Score: &types.ScoreEssayPayload{},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateEssayScored, app.State)
	assert.Equal(t, int64(6), app.Version)
	require.Contains(t, app.Artifacts, types.AgentScorer)

	scoreArtifact, err := f.machine.Artifact(ctx, app.Artifacts[types.AgentScorer])
	require.NoError(t, err)
	var score agents.EssayScore
	require.NoError(t, json.Unmarshal(scoreArtifact.Payload, &score))
	assert.Equal(t, 6.5, score.OverallBand, "(7+6.5+7+6)/4 rounds to the nearest half band")

	app, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandParseRequirements, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Parse: &types.ParseRequirementsPayload{ProgramName: "MSc Computer Science", RawText: "Transcripts required. IELTS 6.5."},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateRequirementsParsed, app.State)
	assert.Equal(t, int64(8), app.Version)

	app, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandMatchPrograms, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Match: &types.MatchProgramsPayload{Profile: testProfile(), Programs: testCatalog()},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateProgramsMatched, app.State)
	assert.Equal(t, int64(10), app.Version)
	assert.Len(t, app.Artifacts, 4)

	for _, step := range []struct {
		kind  types.CommandKind
		state types.ApplicationState
	}{
		{types.CommandApproveShortlist, types.StateReadyToSubmit},
		{types.CommandSubmitApplication, types.StateSubmitted},
		{types.CommandBeginReview, types.StateUnderReview},
	} {
		app, err = f.machine.RequestTransition(ctx, types.Command{
			Kind: step.kind, ApplicationID: app.ID, ExpectedVersion: app.Version,
		})
		require.NoError(t, err)
		assert.Equal(t, step.state, app.State)
	}

	app, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandRecordDecision, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Decision: &types.DecisionPayload{Outcome: types.DecisionAccepted, Note: "congratulations"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateAccepted, app.State)

	app, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandArchive, ApplicationID: app.ID, ExpectedVersion: app.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateArchived, app.State)
	assert.Equal(t, int64(15), app.Version)

	// The event stream alone reconstructs the final aggregate.
	events, err := f.events.List(ctx, app.ID, 0, 1000)
	require.NoError(t, err)
	replayed, err := Replay(events)
	require.NoError(t, err)
	assert.Equal(t, app.State, replayed.State)
	assert.Equal(t, app.Version, replayed.Version)
	assert.Equal(t, app.Artifacts, replayed.Artifacts)
}

func TestEssayRegeneration(t *testing.T) {
	f := newMachineFixture(t,
		llm.MockResult{Content: essayContent()},
		llm.MockResult{Content: essayContent() + " My perspective has since broadened through research internships."},
	)
	ctx := context.Background()

	app := f.seed(t, types.Application{ID: "app-1", StudentID: "s1", State: types.StateProfileReady})

	app, err := f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandStartEssayGeneration, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Generate: &types.GenerateEssayPayload{Profile: testProfile(), ProgramName: "MSc Computer Science"},
	})
	require.NoError(t, err)
	firstDraft := app.Artifacts[types.AgentGenerator]
	require.NotEmpty(t, firstDraft)

	// A second generation from EssayDrafting replaces the draft reference.
	app, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandStartEssayGeneration, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Generate: &types.GenerateEssayPayload{Profile: testProfile(), ProgramName: "MSc Computer Science", Topic: "Research ambitions"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateEssayDrafting, app.State)
	assert.NotEqual(t, firstDraft, app.Artifacts[types.AgentGenerator])
	assert.Equal(t, 2, f.provider.Calls())
}

func TestScoringWithoutDraftIsIllegal(t *testing.T) {
	f := newMachineFixture(t)
	app := f.seed(t, types.Application{ID: "app-1", StudentID: "s1", State: types.StateEssayDrafting})

	_, err := f.machine.RequestTransition(context.Background(), types.Command{
		Kind: types.CommandSubmitEssayScoring, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Score: &types.ScoreEssayPayload{},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeIllegalTransition))
}

func TestFatalJobBlocksApplication(t *testing.T) {
	f := newMachineFixture(t, llm.MockResult{Content: "this is not json"})
	ctx := context.Background()
	app := f.seed(t, types.Application{ID: "app-1", StudentID: "s1", State: types.StateEssayScored})

	_, err := f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandParseRequirements, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Parse: &types.ParseRequirementsPayload{ProgramName: "MSc Computer Science", RawText: "Transcripts required."},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeProviderFatal))

	blocked, err := f.machine.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateBlocked, blocked.State)
	assert.Equal(t, types.StateEssayScored, blocked.BlockedFrom)
	assert.Equal(t, types.AgentParser, blocked.BlockedAgent)
	assert.Equal(t, types.CommandParseRequirements, blocked.BlockedCommand)
	assert.NotEmpty(t, blocked.BlockedReason)
	assert.Equal(t, app.Version+1, blocked.Version)
}

func TestOverrideRedispatchesBlockedCommand(t *testing.T) {
	f := newMachineFixture(t,
		llm.MockResult{Content: "this is not json"},
		llm.MockResult{Content: parserContent()},
	)
	ctx := context.Background()
	app := f.seed(t, types.Application{ID: "app-1", StudentID: "s1", State: types.StateEssayScored})

	_, err := f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandParseRequirements, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Parse: &types.ParseRequirementsPayload{ProgramName: "MSc Computer Science", RawText: "Transcripts required."},
	})
	require.Error(t, err)

	blocked, err := f.machine.Get(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, types.StateBlocked, blocked.State)

	// Override re-runs parse_requirements with a corrected payload; the
	// application first returns to the state it blocked from.
	result, err := f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandOverride, ApplicationID: app.ID, ExpectedVersion: blocked.Version,
		Override: &types.OverridePayload{
			Parse: &types.ParseRequirementsPayload{ProgramName: "MSc Computer Science", RawText: "Transcripts required. IELTS 6.5 overall."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateRequirementsParsed, result.State)
	assert.Empty(t, result.BlockedCommand)
	assert.Empty(t, result.BlockedReason)
	require.Contains(t, result.Artifacts, types.AgentParser)
}

func TestOverrideRequiresPayload(t *testing.T) {
	f := newMachineFixture(t, llm.MockResult{Content: "this is not json"})
	ctx := context.Background()
	app := f.seed(t, types.Application{ID: "app-1", StudentID: "s1", State: types.StateEssayScored})

	_, err := f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandParseRequirements, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Parse: &types.ParseRequirementsPayload{ProgramName: "MSc Computer Science", RawText: "Transcripts."},
	})
	require.Error(t, err)

	blocked, err := f.machine.Get(ctx, app.ID)
	require.NoError(t, err)

	_, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandOverride, ApplicationID: app.ID, ExpectedVersion: blocked.Version,
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeIllegalTransition))
}

func TestRecordDecisionOutcomes(t *testing.T) {
	f := newMachineFixture(t)
	ctx := context.Background()

	tests := []struct {
		outcome types.DecisionOutcome
		state   types.ApplicationState
	}{
		{types.DecisionAccepted, types.StateAccepted},
		{types.DecisionRejected, types.StateRejected},
		{types.DecisionWaitlisted, types.StateWaitlisted},
	}
	for _, tt := range tests {
		app := f.seed(t, types.Application{ID: "app-" + string(tt.outcome), StudentID: "s1", State: types.StateUnderReview})

		result, err := f.machine.RequestTransition(ctx, types.Command{
			Kind: types.CommandRecordDecision, ApplicationID: app.ID, ExpectedVersion: app.Version,
			Decision: &types.DecisionPayload{Outcome: tt.outcome},
		})
		require.NoError(t, err)
		assert.Equal(t, tt.state, result.State)
	}
}

func TestRecordDecisionRequiresKnownOutcome(t *testing.T) {
	f := newMachineFixture(t)
	ctx := context.Background()
	app := f.seed(t, types.Application{ID: "app-1", StudentID: "s1", State: types.StateUnderReview})

	_, err := f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandRecordDecision, ApplicationID: app.ID, ExpectedVersion: app.Version,
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeIllegalTransition))

	_, err = f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandRecordDecision, ApplicationID: app.ID, ExpectedVersion: app.Version,
		Decision: &types.DecisionPayload{Outcome: "deferred"},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeIllegalTransition))
}

func TestReopenReturnsToProfileReady(t *testing.T) {
	f := newMachineFixture(t)
	ctx := context.Background()
	app := f.seed(t, types.Application{ID: "app-1", StudentID: "s1", State: types.StateRejected})

	result, err := f.machine.RequestTransition(ctx, types.Command{
		Kind: types.CommandReopen, ApplicationID: app.ID, ExpectedVersion: app.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateProfileReady, result.State)
	assert.Equal(t, app.Version+1, result.Version)
}

func TestArchivedIsTerminal(t *testing.T) {
	f := newMachineFixture(t)
	ctx := context.Background()
	app := f.seed(t, types.Application{ID: "app-1", StudentID: "s1", State: types.StateArchived})

	for _, kind := range []types.CommandKind{
		types.CommandCompleteProfile, types.CommandReopen, types.CommandArchive, types.CommandBeginReview,
	} {
		_, err := f.machine.RequestTransition(ctx, types.Command{
			Kind: kind, ApplicationID: app.ID, ExpectedVersion: app.Version,
		})
		require.Error(t, err, "command %s must be illegal from archived", kind)
		assert.True(t, IsCode(err, ErrCodeIllegalTransition))
	}
}
