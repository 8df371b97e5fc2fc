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
	"errors"
	"time"

	"github.com/google/uuid"

	"admitflow/platform/orchestrator/agents"
	"admitflow/platform/shared/logger"
	"admitflow/platform/shared/types"
)

// legalSources maps each command to the states it is legal from.
// Transitions only move forward through the lifecycle graph; the only ways
// back are Reopen (from a decision state) and Override (from Blocked).
var legalSources = map[types.CommandKind][]types.ApplicationState{
	types.CommandCompleteProfile:      {types.StateDraft},
	types.CommandStartEssayGeneration: {types.StateProfileReady, types.StateEssayDrafting},
	types.CommandSubmitEssayScoring:   {types.StateEssayDrafting},
	types.CommandParseRequirements:    {types.StateEssayScored},
	types.CommandMatchPrograms:        {types.StateRequirementsParsed},
	types.CommandApproveShortlist:     {types.StateProgramsMatched},
	types.CommandSubmitApplication:    {types.StateReadyToSubmit},
	types.CommandBeginReview:          {types.StateSubmitted},
	types.CommandRecordDecision:       {types.StateUnderReview},
	types.CommandArchive:              {types.StateAccepted, types.StateRejected, types.StateWaitlisted},
	types.CommandReopen:               {types.StateRejected, types.StateWaitlisted},
	types.CommandOverride:             {types.StateBlocked},
}

// pureTargets maps each pure command to its target state. Agent-backed
// commands and RecordDecision (target depends on the outcome) are handled
// separately.
var pureTargets = map[types.CommandKind]types.ApplicationState{
	types.CommandCompleteProfile:   types.StateProfileReady,
	types.CommandApproveShortlist:  types.StateReadyToSubmit,
	types.CommandSubmitApplication: types.StateSubmitted,
	types.CommandBeginReview:       types.StateUnderReview,
	types.CommandArchive:           types.StateArchived,
	types.CommandReopen:            types.StateProfileReady,
}

// agentTargets maps each agent-backed command to the state committed on
// job success. StartEssayGeneration is absent: it enters EssayDrafting at
// acceptance and the success is recorded as the artifact commit.
var agentTargets = map[types.CommandKind]types.ApplicationState{
	types.CommandSubmitEssayScoring: types.StateEssayScored,
	types.CommandParseRequirements:  types.StateRequirementsParsed,
	types.CommandMatchPrograms:      types.StateProgramsMatched,
}

// StateMachine owns the canonical lifecycle state of applications. All
// mutation goes through RequestTransition under optimistic concurrency.
type StateMachine struct {
	apps   ApplicationStore
	events *EventLog
	engine *JobEngine
	cache  *ArtifactCache
	log    *logger.Logger
}

// NewStateMachine creates the state machine over its collaborators.
func NewStateMachine(apps ApplicationStore, events *EventLog, engine *JobEngine, cache *ArtifactCache, log *logger.Logger) *StateMachine {
	return &StateMachine{apps: apps, events: events, engine: engine, cache: cache, log: log}
}

// CreateApplication registers a new application in Draft at version 1.
func (m *StateMachine) CreateApplication(ctx context.Context, studentID string) (types.Application, error) {
	now := time.Now().UTC()
	app := types.Application{
		ID:        uuid.NewString(),
		StudentID: studentID,
		State:     types.StateDraft,
		Version:   1,
		Artifacts: make(map[types.AgentType]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.apps.Create(ctx, app); err != nil {
		return types.Application{}, err
	}
	return app, nil
}

// Get returns the current application.
func (m *StateMachine) Get(ctx context.Context, id string) (types.Application, error) {
	return m.apps.Get(ctx, id)
}

// Events returns a page of the application's audit timeline.
func (m *StateMachine) Events(ctx context.Context, id string, afterSeq int64, limit int) ([]types.Event, error) {
	if _, err := m.apps.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.events.List(ctx, id, afterSeq, limit)
}

// Artifact returns an artifact payload by fingerprint.
func (m *StateMachine) Artifact(ctx context.Context, fingerprint string) (types.Artifact, error) {
	cached, err := m.cache.Lookup(ctx, fingerprint)
	if err != nil {
		return types.Artifact{}, err
	}
	if cached == nil {
		return types.Artifact{}, newError(ErrCodeNotFound, "artifact %s not found", fingerprint)
	}
	return *cached, nil
}

// RequestTransition validates and applies one lifecycle command. The
// caller must present the application's current version; a stale version
// is rejected with VersionConflict before anything happens.
func (m *StateMachine) RequestTransition(ctx context.Context, cmd types.Command) (types.Application, error) {
	app, err := m.apps.Get(ctx, cmd.ApplicationID)
	if err != nil {
		metricTransitions.WithLabelValues(string(cmd.Kind), "rejected").Inc()
		return types.Application{}, err
	}

	if cmd.ExpectedVersion != app.Version {
		metricTransitions.WithLabelValues(string(cmd.Kind), "rejected").Inc()
		return types.Application{}, newError(ErrCodeVersionConflict,
			"application %s is at version %d, command expected %d", app.ID, app.Version, cmd.ExpectedVersion)
	}

	if !commandLegalFrom(cmd.Kind, app.State) {
		metricTransitions.WithLabelValues(string(cmd.Kind), "rejected").Inc()
		return types.Application{}, newError(ErrCodeIllegalTransition,
			"command %s is not legal from state %s", cmd.Kind, app.State)
	}

	result, err := m.apply(ctx, app, cmd)
	if err != nil {
		metricTransitions.WithLabelValues(string(cmd.Kind), "failed").Inc()
		return types.Application{}, err
	}
	metricTransitions.WithLabelValues(string(cmd.Kind), "accepted").Inc()
	return result, nil
}

func commandLegalFrom(kind types.CommandKind, state types.ApplicationState) bool {
	for _, s := range legalSources[kind] {
		if s == state {
			return true
		}
	}
	return false
}

// apply routes the command after version and legality checks passed.
func (m *StateMachine) apply(ctx context.Context, app types.Application, cmd types.Command) (types.Application, error) {
	switch cmd.Kind {
	case types.CommandRecordDecision:
		if cmd.Decision == nil {
			return types.Application{}, newError(ErrCodeIllegalTransition, "record_decision requires a decision payload")
		}
		target, ok := cmd.Decision.Outcome.StateFor()
		if !ok {
			return types.Application{}, newError(ErrCodeIllegalTransition, "unknown decision outcome %q", cmd.Decision.Outcome)
		}
		return m.commitTransition(ctx, app, target, cmd.Kind, cmd.Decision.Note)

	case types.CommandOverride:
		return m.applyOverride(ctx, app, cmd)

	default:
		if target, ok := pureTargets[cmd.Kind]; ok {
			return m.commitTransition(ctx, app, target, cmd.Kind, "")
		}
		return m.applyAgentCommand(ctx, app, cmd)
	}
}

// applyAgentCommand runs the agent-backed path: enter the working state if
// the command defines one, dispatch the job through the engine, and commit
// the success transition or the Blocked bookkeeping.
func (m *StateMachine) applyAgentCommand(ctx context.Context, app types.Application, cmd types.Command) (types.Application, error) {
	input, err := m.buildInput(ctx, app, cmd)
	if err != nil {
		return types.Application{}, err
	}

	if cmd.Kind == types.CommandStartEssayGeneration && app.State != types.StateEssayDrafting {
		app, err = m.commitTransition(ctx, app, types.StateEssayDrafting, cmd.Kind, "")
		if err != nil {
			return types.Application{}, err
		}
	}

	commit := func(ctx context.Context, fingerprint string) (int64, error) {
		return m.commitArtifact(ctx, app.ID, input.Agent, fingerprint)
	}

	if _, err := m.engine.RunJob(ctx, app.ID, input, commit); err != nil {
		switch CodeOf(err) {
		case ErrCodeProviderFatal, ErrCodeProviderRetryable, ErrCodeLeaseTimeout:
			if errors.Is(err, context.Canceled) {
				// The caller went away; nothing to block over.
				return types.Application{}, err
			}
			return m.blockApplication(ctx, app.ID, input.Agent, cmd.Kind, err)
		default:
			return types.Application{}, err
		}
	}

	current, err := m.apps.Get(ctx, app.ID)
	if err != nil {
		return types.Application{}, err
	}

	if target, ok := agentTargets[cmd.Kind]; ok && current.State != target {
		return m.commitTransition(ctx, current, target, cmd.Kind, "")
	}
	return current, nil
}

// buildInput assembles the strongly typed adapter input for an
// agent-backed command. The scorer input resolves essay text from the
// latest generator artifact when the command did not carry it.
func (m *StateMachine) buildInput(ctx context.Context, app types.Application, cmd types.Command) (agents.Input, error) {
	agent := cmd.Kind.AgentFor()

	input := agents.Input{
		Agent:    agent,
		Generate: cmd.Generate,
		Score:    cmd.Score,
		Parse:    cmd.Parse,
		Match:    cmd.Match,
	}

	if agent == types.AgentScorer && cmd.Score != nil && cmd.Score.EssayText == "" {
		fingerprint, ok := app.Artifacts[types.AgentGenerator]
		if !ok {
			return agents.Input{}, newError(ErrCodeIllegalTransition,
				"application %s has no essay draft to score", app.ID)
		}
		artifact, err := m.Artifact(ctx, fingerprint)
		if err != nil {
			return agents.Input{}, err
		}
		var draft agents.EssayDraft
		if err := json.Unmarshal(artifact.Payload, &draft); err != nil {
			return agents.Input{}, wrapError(ErrCodeCacheCorruption, err, "essay draft %s is unreadable", fingerprint)
		}
		score := *cmd.Score
		score.EssayText = draft.Text
		input.Score = &score
	}

	if err := input.Validate(); err != nil {
		return agents.Input{}, wrapError(ErrCodeIllegalTransition, err, "invalid %s command payload", cmd.Kind)
	}
	return input, nil
}

// applyOverride re-dispatches the command that blocked the application.
// The embedded payload replaces the original input so an operator can
// correct it; the application first returns to the state it blocked from.
func (m *StateMachine) applyOverride(ctx context.Context, app types.Application, cmd types.Command) (types.Application, error) {
	if cmd.Override == nil {
		return types.Application{}, newError(ErrCodeIllegalTransition, "override requires a payload")
	}
	if app.BlockedCommand == "" || app.BlockedFrom == "" {
		return types.Application{}, newError(ErrCodeIllegalTransition,
			"application %s has no blocked command to override", app.ID)
	}

	restored, err := m.unblock(ctx, app)
	if err != nil {
		return types.Application{}, err
	}

	redispatch := types.Command{
		Kind:            app.BlockedCommand,
		ApplicationID:   app.ID,
		ExpectedVersion: restored.Version,
		Generate:        cmd.Override.Generate,
		Score:           cmd.Override.Score,
		Parse:           cmd.Override.Parse,
		Match:           cmd.Override.Match,
	}
	return m.RequestTransition(ctx, redispatch)
}

// unblock returns a blocked application to the state it blocked from and
// clears the blocked bookkeeping.
func (m *StateMachine) unblock(ctx context.Context, app types.Application) (types.Application, error) {
	next := app.Clone()
	next.State = app.BlockedFrom
	next.BlockedFrom = ""
	next.BlockedAgent = ""
	next.BlockedReason = ""
	next.BlockedCommand = ""
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	if err := m.apps.CompareAndSwap(ctx, next, app.Version); err != nil {
		return types.Application{}, err
	}

	if _, err := m.events.Record(ctx, app.ID, types.EventStateChanged, types.StateChangedPayload{
		From:    types.StateBlocked,
		To:      next.State,
		Version: next.Version,
		Command: types.CommandOverride,
	}); err != nil {
		return types.Application{}, err
	}
	return next, nil
}

// commitTransition applies one durable state change at the application's
// current version, then appends the StateChanged event.
func (m *StateMachine) commitTransition(ctx context.Context, app types.Application, target types.ApplicationState, command types.CommandKind, reason string) (types.Application, error) {
	next := app.Clone()
	next.State = target
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	if err := m.apps.CompareAndSwap(ctx, next, app.Version); err != nil {
		return types.Application{}, err
	}

	if _, err := m.events.Record(ctx, app.ID, types.EventStateChanged, types.StateChangedPayload{
		From:    app.State,
		To:      target,
		Version: next.Version,
		Command: command,
		Reason:  reason,
	}); err != nil {
		return types.Application{}, err
	}

	m.log.Info(app.ID, "", "application transitioned", map[string]interface{}{
		"from":    string(app.State),
		"to":      string(target),
		"version": next.Version,
	})
	return next, nil
}

// commitArtifact records an artifact reference on the application,
// bumping the version. It retries on CAS races with concurrent commits
// and is idempotent for a fingerprint already recorded, so joined callers
// converge without double-bumping.
func (m *StateMachine) commitArtifact(ctx context.Context, applicationID string, agent types.AgentType, fingerprint string) (int64, error) {
	for {
		app, err := m.apps.Get(ctx, applicationID)
		if err != nil {
			return 0, err
		}
		if app.Artifacts[agent] == fingerprint {
			return app.Version, nil
		}

		next := app.Clone()
		next.Artifacts[agent] = fingerprint
		next.Version++
		next.UpdatedAt = time.Now().UTC()

		err = m.apps.CompareAndSwap(ctx, next, app.Version)
		if err == nil {
			return next.Version, nil
		}
		if !IsCode(err, ErrCodeVersionConflict) {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, wrapError(ErrCodeInternal, err, "artifact commit interrupted")
		}
	}
}

// blockApplication moves the application to Blocked after a job exhausted
// its retries or failed fatally, recording what blocked it for Override.
func (m *StateMachine) blockApplication(ctx context.Context, applicationID string, agent types.AgentType, command types.CommandKind, cause error) (types.Application, error) {
	for {
		app, err := m.apps.Get(ctx, applicationID)
		if err != nil {
			return types.Application{}, err
		}
		if app.State == types.StateBlocked {
			return types.Application{}, cause
		}

		next := app.Clone()
		next.State = types.StateBlocked
		next.BlockedFrom = app.State
		next.BlockedAgent = agent
		next.BlockedReason = cause.Error()
		next.BlockedCommand = command
		next.Version++
		next.UpdatedAt = time.Now().UTC()

		casErr := m.apps.CompareAndSwap(ctx, next, app.Version)
		if casErr == nil {
			if _, err := m.events.Record(ctx, applicationID, types.EventStateChanged, types.StateChangedPayload{
				From:    app.State,
				To:      types.StateBlocked,
				Version: next.Version,
				Command: command,
				Reason:  cause.Error(),
			}); err != nil {
				m.log.Error(applicationID, "", "failed to record blocked transition", map[string]interface{}{
					"error": err.Error(),
				})
			}
			metricBlockedApplications.Inc()
			return types.Application{}, cause
		}
		if !IsCode(casErr, ErrCodeVersionConflict) {
			return types.Application{}, casErr
		}
	}
}
