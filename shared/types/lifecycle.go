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

package types

// ApplicationState represents a position in the application lifecycle graph.
type ApplicationState string

// Lifecycle states. Transitions only move forward through this graph; the
// only ways back are the explicit Reopen and Override commands.
const (
	StateDraft              ApplicationState = "draft"
	StateProfileReady       ApplicationState = "profile_ready"
	StateEssayDrafting      ApplicationState = "essay_drafting"
	StateEssayScored        ApplicationState = "essay_scored"
	StateRequirementsParsed ApplicationState = "requirements_parsed"
	StateProgramsMatched    ApplicationState = "programs_matched"
	StateReadyToSubmit      ApplicationState = "ready_to_submit"
	StateSubmitted          ApplicationState = "submitted"
	StateUnderReview        ApplicationState = "under_review"
	StateAccepted           ApplicationState = "accepted"
	StateRejected           ApplicationState = "rejected"
	StateWaitlisted         ApplicationState = "waitlisted"
	StateArchived           ApplicationState = "archived"

	// StateBlocked is the side state reached when an agent job exhausts its
	// retry budget. The state it was blocked from is kept on the Application.
	StateBlocked ApplicationState = "blocked"
)

// String returns the string representation of the state.
func (s ApplicationState) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state.
func (s ApplicationState) IsValid() bool {
	switch s {
	case StateDraft, StateProfileReady, StateEssayDrafting, StateEssayScored,
		StateRequirementsParsed, StateProgramsMatched, StateReadyToSubmit,
		StateSubmitted, StateUnderReview, StateAccepted, StateRejected,
		StateWaitlisted, StateArchived, StateBlocked:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states with no outgoing transitions.
// Rejected and Waitlisted are not terminal: they can be reopened or archived.
func (s ApplicationState) IsTerminal() bool {
	return s == StateArchived
}

// IsDecision returns true for the three review outcomes.
func (s ApplicationState) IsDecision() bool {
	return s == StateAccepted || s == StateRejected || s == StateWaitlisted
}

// AgentType identifies one of the four AI capabilities the orchestrator
// can dispatch work to.
type AgentType string

const (
	AgentGenerator AgentType = "generator"
	AgentScorer    AgentType = "scorer"
	AgentParser    AgentType = "parser"
	AgentMatcher   AgentType = "matcher"
)

// String returns the string representation of the agent type.
func (a AgentType) String() string {
	return string(a)
}

// IsValid returns true if the agent type is one of the four known kinds.
func (a AgentType) IsValid() bool {
	switch a {
	case AgentGenerator, AgentScorer, AgentParser, AgentMatcher:
		return true
	default:
		return false
	}
}

// CommandKind identifies a typed command accepted by the state machine.
type CommandKind string

// Agent-backed commands run a job through the orchestrator before the
// transition commits. Pure commands apply immediately.
const (
	CommandCompleteProfile      CommandKind = "complete_profile"       // pure
	CommandStartEssayGeneration CommandKind = "start_essay_generation" // generator
	CommandSubmitEssayScoring   CommandKind = "submit_essay_scoring"   // scorer
	CommandParseRequirements    CommandKind = "parse_requirements"     // parser
	CommandMatchPrograms        CommandKind = "match_programs"         // matcher
	CommandApproveShortlist     CommandKind = "approve_shortlist"      // pure
	CommandSubmitApplication    CommandKind = "submit_application"     // pure
	CommandBeginReview          CommandKind = "begin_review"           // pure
	CommandRecordDecision       CommandKind = "record_decision"        // pure
	CommandArchive              CommandKind = "archive"                // pure
	CommandOverride             CommandKind = "override"               // re-dispatch from Blocked
	CommandReopen               CommandKind = "reopen"                 // pure
)

// String returns the string representation of the command kind.
func (c CommandKind) String() string {
	return string(c)
}

// AgentFor returns the agent type an agent-backed command dispatches to,
// or "" for pure commands.
func (c CommandKind) AgentFor() AgentType {
	switch c {
	case CommandStartEssayGeneration:
		return AgentGenerator
	case CommandSubmitEssayScoring:
		return AgentScorer
	case CommandParseRequirements:
		return AgentParser
	case CommandMatchPrograms:
		return AgentMatcher
	default:
		return ""
	}
}
